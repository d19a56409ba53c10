package ingest

import (
	"fmt"
	"io"
	"mime/multipart"

	"backend-lacakair/internal/imaging"
)

// FromFormFile reads an uploaded multipart file into a RawImage. Dimensions
// are left zero; the normalizer reads them from the image header.
func FromFormFile(fh *multipart.FileHeader) (imaging.RawImage, error) {
	f, err := fh.Open()
	if err != nil {
		return imaging.RawImage{}, fmt.Errorf("open form file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return imaging.RawImage{}, fmt.Errorf("read form file: %w", err)
	}
	return imaging.RawImage{URI: "form://" + fh.Filename, Data: data}, nil
}
