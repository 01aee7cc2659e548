package boardingpass

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/skip2/go-qrcode"
)

var ErrInvalidQR = errors.New("invalid boarding pass code")

const qrSize = 256

type QRGenerator struct {
	secret []byte
}

func NewQRGenerator(secret string) *QRGenerator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &QRGenerator{secret: hashed[:]}
}

// Encrypt returns the opaque string encoded in the QR image.
func (q *QRGenerator) Encrypt(c Credential) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return encryptAES(data, q.secret)
}

// GeneratePNG renders the encrypted credential as a 256px QR PNG.
func (q *QRGenerator) GeneratePNG(c Credential) ([]byte, error) {
	encrypted, err := q.Encrypt(c)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, qrSize)
}

// Decrypt reverses Encrypt for gate scanners.
func (q *QRGenerator) Decrypt(encoded string) (Credential, error) {
	var c Credential
	data, err := decryptAES(encoded, q.secret)
	if err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrInvalidQR, err)
	}
	if c.PassengerID == 0 || c.BookingID == "" {
		return c, fmt.Errorf("%w: missing passenger", ErrInvalidQR)
	}
	return c, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}

func decryptAES(encoded string, key []byte) ([]byte, error) {
	ciphertext, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) <= aes.BlockSize {
		return nil, errors.New("ciphertext too short")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	iv := ciphertext[:aes.BlockSize]
	data := make([]byte, len(ciphertext)-aes.BlockSize)
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, ciphertext[aes.BlockSize:])
	return data, nil
}
