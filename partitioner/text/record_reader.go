package text

import (
	"bufio"
	"io"
	"strings"
)

// recordReader assembles physical lines into logical records. A record whose quote
// characters are unbalanced continues onto the following line, so a quoted field
// containing a line break is never divided. Line terminators are kept verbatim.
type recordReader struct {
	r     *bufio.Reader
	quote rune
}

func newRecordReader(r *bufio.Reader, quote rune) *recordReader {
	return &recordReader{r: r, quote: quote}
}

// next returns the next record. At the end of input it returns whatever was read
// along with io.EOF; unterminated is true if the input ended inside a quoted field.
func (rr *recordReader) next() (record string, unterminated bool, err error) {
	var sb strings.Builder
	open := false
	for {
		line, err := rr.r.ReadString('\n')
		sb.WriteString(line)
		if rr.quote > 0 && strings.Count(line, string(rr.quote))%2 == 1 {
			open = !open
		}
		if err != nil {
			if err == io.EOF {
				return sb.String(), open, io.EOF
			}
			return "", false, err
		}
		if !open {
			return sb.String(), false, nil
		}
	}
}

// splitHeader tokenizes a header record, honouring the quote character
func splitHeader(header string, delimiter rune, quote rune) []string {
	header = strings.TrimRight(header, "\r\n")
	var tokens []string
	var sb strings.Builder
	inQuotes := false
	runes := []rune(header)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch {
		case quote > 0 && c == quote:
			if inQuotes && i+1 < len(runes) && runes[i+1] == quote {
				sb.WriteRune(quote)
				i++
			} else {
				inQuotes = !inQuotes
			}
		case c == delimiter && !inQuotes:
			tokens = append(tokens, sb.String())
			sb.Reset()
		default:
			sb.WriteRune(c)
		}
	}
	return append(tokens, sb.String())
}
