package imaging

import "fmt"

// DecodeError reports source bytes that could not be read as an image.
type DecodeError struct {
	URI string
	Err error
}

func (e *DecodeError) Error() string {
	if e.URI == "" {
		return fmt.Sprintf("decode image: %v", e.Err)
	}
	return fmt.Sprintf("decode image %s: %v", e.URI, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError reports an encoder failure after a successful decode.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode image: %v", e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }
