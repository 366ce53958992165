// Package shpmeta reads the sidecar files which describe a Shapefile: the .prj CRS
// and the .cpg code page. It also finishes Shapefiles written with go-shp.
package shpmeta

import (
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-sif/geopart/charset"
	"github.com/go-sif/geopart/errors"
	shp "github.com/jonas-p/go-shp"
)

// WKT root keywords accepted in a .prj sidecar
var knownCRSKeywords = []string{
	"PROJCS", "GEOGCS", "GEOCCS", "COMPD_CS", "LOCAL_CS",
	"PROJCRS", "GEOGCRS", "GEODCRS", "COMPOUNDCRS", "ENGCRS", "BOUNDCRS",
}

// Sidecar returns the path of the file sharing shpPath's basename with the given extension
func Sidecar(shpPath string, ext string) string {
	return strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + ext
}

// CloseWriter closes a Shapefile writer created for shpPath. go-shp writes the
// attribute table to "<base>dbf", so it is moved to "<base>.dbf" afterwards.
func CloseWriter(w *shp.Writer, shpPath string) error {
	w.Close()
	misnamed := strings.TrimSuffix(shpPath, filepath.Ext(shpPath)) + "dbf"
	if _, err := os.Stat(misnamed); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	}
	return os.Rename(misnamed, Sidecar(shpPath, ".dbf"))
}

func readOptional(path string) ([]byte, bool, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// ReadCRS loads and validates the .prj sidecar. found is false when there is none.
func ReadCRS(shpPath string) (crs []byte, found bool, err error) {
	path := Sidecar(shpPath, ".prj")
	raw, found, err := readOptional(path)
	if err != nil {
		return nil, false, errors.InputAccessError{Path: path, Err: err}
	}
	if !found {
		return nil, false, nil
	}
	if err := ValidateCRS(path, raw); err != nil {
		return nil, true, err
	}
	return raw, true, nil
}

// ValidateCRS checks that raw is WKT rooted at a known CRS keyword
func ValidateCRS(path string, raw []byte) error {
	text := strings.TrimSpace(strings.TrimPrefix(string(raw), "\ufeff"))
	if text == "" {
		return errors.FormatError{Path: path, Reason: "empty CRS definition"}
	}
	keyword := strings.ToUpper(strings.TrimRightFunc(strings.SplitN(text, "[", 2)[0], unicode.IsSpace))
	for _, known := range knownCRSKeywords {
		if keyword == known {
			return nil
		}
	}
	return errors.FormatError{Path: path, Reason: "unsupported CRS definition " + keyword}
}

// ResolveCharset picks the attribute encoding: the requested name, then the .cpg
// sidecar, then UTF-8. fallback is true when UTF-8 was assumed.
func ResolveCharset(shpPath string, requested string) (cs *charset.Charset, fallback bool, err error) {
	if requested != "" {
		cs, err = charset.Lookup(requested)
		return cs, false, err
	}
	path := Sidecar(shpPath, ".cpg")
	raw, found, err := readOptional(path)
	if err != nil {
		return nil, false, errors.InputAccessError{Path: path, Err: err}
	}
	name := strings.TrimSpace(string(raw))
	if !found || name == "" {
		return charset.UTF8(), true, nil
	}
	cs, err = charset.Lookup(CodePageName(name))
	if err != nil {
		return nil, false, errors.FormatError{Path: path, Reason: "unknown code page " + name, Err: err}
	}
	return cs, false, nil
}

// CodePageName maps the bare numeric code pages some writers put in .cpg files to labels
func CodePageName(name string) string {
	for _, r := range name {
		if r < '0' || r > '9' {
			return name
		}
	}
	switch {
	case name == "65001":
		return "utf-8"
	case name == "874" || strings.HasPrefix(name, "125"):
		return "windows-" + name
	case strings.HasPrefix(name, "8859"):
		return "iso-8859-" + strings.TrimPrefix(name, "8859")
	}
	return "ibm" + name
}
