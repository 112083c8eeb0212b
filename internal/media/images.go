package media

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"strings"

	"threads/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	// MasterMaxSize bounds both dimensions of a stored image.
	MasterMaxSize = 2048
	webpQuality   = 82

	storedContentType = "image/webp"
)

var decodedFormats = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

func normalizeContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mt
	}
	ct = strings.ToLower(ct)
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}

func isAllowedImageMIME(ct string) bool {
	switch normalizeContentType(ct) {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	}
	return false
}

// PrepareImage checks that body is a JPEG, PNG, GIF or WebP image whose
// bytes agree with the declared content type, bounds it to MasterMaxSize
// and re-encodes it as WebP. Only the first frame of an animated GIF is
// kept.
func PrepareImage(body []byte, declared string) ([]byte, string, error) {
	if !isAllowedImageMIME(http.DetectContentType(body)) {
		return nil, "", models.NewValidationError("Invalid image type")
	}

	img, format, err := image.Decode(bytes.NewReader(body))
	if err != nil {
		return nil, "", models.NewValidationError("Invalid image file")
	}
	actual, ok := decodedFormats[format]
	if !ok {
		return nil, "", models.NewValidationError("Unsupported image format")
	}
	if d := normalizeContentType(declared); strings.HasPrefix(d, "image/") && d != actual {
		return nil, "", models.NewValidationError("Image content type mismatch")
	}

	var out bytes.Buffer
	if err := webp.Encode(&out, resizeToFit(img, MasterMaxSize, MasterMaxSize), &webp.Options{Quality: webpQuality}); err != nil {
		return nil, "", models.NewInternalError(err)
	}
	return out.Bytes(), storedContentType, nil
}

func resizeToFit(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 || (w <= maxW && h <= maxH) {
		return src
	}

	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(int(float64(w)*scale), 1)
	nh := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}
