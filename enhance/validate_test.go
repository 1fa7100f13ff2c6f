package enhance

import (
	"bytes"
	"errors"
	"testing"
)

func TestValidateUpload(t *testing.T) {
	png := pngBytes(t, 4, 4)
	jpg := jpegBytes(t, 4, 4)
	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")

	tests := []struct {
		name    string
		upload  *Upload
		max     int64
		wantMsg string
		wantCT  string
	}{
		{name: "png", upload: &Upload{Name: "a.png", Data: png}, wantCT: "image/png"},
		{name: "jpeg", upload: &Upload{Name: "a.jpg", Data: jpg}, wantCT: "image/jpeg"},
		{name: "png bytes under a jpg name", upload: &Upload{Name: "a.jpg", ContentType: "image/jpeg", Data: png}, wantCT: "image/png"},
		{name: "gif rejected despite declared type", upload: &Upload{Name: "a.png", ContentType: "image/png", Data: gif}, wantMsg: MsgUnsupportedType},
		{name: "text rejected", upload: &Upload{Name: "a.txt", Data: []byte("hello")}, wantMsg: MsgUnsupportedType},
		{name: "empty", upload: &Upload{Name: "a.png"}, wantMsg: MsgNoFile},
		{name: "nil", upload: nil, wantMsg: MsgNoFile},
		{name: "too large", upload: &Upload{Name: "a.png", Data: append(append([]byte{}, png...), bytes.Repeat([]byte{0}, 4096)...)}, max: 4096, wantMsg: "File must be under 4KB."},
		{name: "custom limit in megabytes", upload: &Upload{Name: "a.png", Data: append(append([]byte{}, png...), make([]byte, 2<<20)...)}, max: 2 << 20, wantMsg: "File must be under 2MB."},
		{name: "over default limit", upload: &Upload{Name: "big.png", Data: append(append([]byte{}, png...), make([]byte, DefaultMaxUploadBytes)...)}, wantMsg: MsgTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUpload(tt.upload, tt.max)
			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("ValidateUpload() error = %v", err)
				}
				if tt.upload.ContentType != tt.wantCT {
					t.Errorf("ContentType = %q, want %q", tt.upload.ContentType, tt.wantCT)
				}
				return
			}
			if err == nil {
				t.Fatal("ValidateUpload() error = nil")
			}
			if !IsValidationError(err) {
				t.Errorf("error %T is not a ValidationError", err)
			}
			if err.Error() != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestDetectContentType_FallsBackForUnknownBytes(t *testing.T) {
	unknown := []byte{0x00, 0x01, 0x02, 0x03}
	if got := DetectContentType("x.png", "", unknown); got != "image/png" {
		t.Errorf("extension fallback = %q, want image/png", got)
	}
	if got := DetectContentType("x", "image/JPEG; charset=binary", unknown); got != "image/jpeg" {
		t.Errorf("declared fallback = %q, want image/jpeg", got)
	}
}

func TestValidateScale(t *testing.T) {
	for _, s := range []int{2, 4} {
		if err := ValidateScale(s); err != nil {
			t.Errorf("ValidateScale(%d) error = %v", s, err)
		}
	}
	for _, s := range []int{0, 1, 3, 8} {
		if err := ValidateScale(s); !errors.Is(err, ErrInvalidScale) {
			t.Errorf("ValidateScale(%d) error = %v, want ErrInvalidScale", s, err)
		}
	}
}
