// Package secretbox cifra los tokens OAuth en reposo con AES-256-GCM.
//
// Formato de salida: base64(nonce)|base64(ciphertext). El nonce es aleatorio
// por llamada; nunca se reutiliza bajo la misma clave. La clave maestra se
// carga una vez (env CROSSPOST_MASTER_KEY en base64/hex/raw, o derivada de
// CROSSPOST_MASTER_PASSPHRASE con argon2id) y la Box se inyecta como
// dependencia: nada de estado global.
package secretbox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	keyEnvVar        = "CROSSPOST_MASTER_KEY"
	passphraseEnvVar = "CROSSPOST_MASTER_PASSPHRASE"
	saltEnvVar       = "CROSSPOST_MASTER_SALT"

	nonceSizeGCM      = 12  // AES-GCM nonce recomendado (96 bits)
	requiredKeyLength = 32  // 32 bytes => AES-256
	sep               = "|" // nonce|ciphertext (ambos en base64)
)

// ErrCrypto es la raíz de todos los fallos de cifrado/descifrado.
var ErrCrypto = errors.New("crypto failure")

// CryptoError envuelve la causa concreta de un fallo de secretbox.
type CryptoError struct {
	Op  string // "encrypt" | "decrypt" | "key"
	Err error
}

func (e *CryptoError) Error() string { return "secretbox: " + e.Op + ": " + e.Err.Error() }
func (e *CryptoError) Unwrap() error { return ErrCrypto }

func cryptoErr(op string, err error) error { return &CryptoError{Op: op, Err: err} }

// Box cifra y descifra con una clave fija de 32 bytes.
// Segura para uso concurrente: la clave es inmutable tras la construcción.
type Box struct {
	aead cipher.AEAD
}

// New crea una Box a partir de una clave de exactamente 32 bytes.
func New(key []byte) (*Box, error) {
	if len(key) != requiredKeyLength {
		return nil, cryptoErr("key", fmt.Errorf("se requieren %d bytes, hay %d", requiredKeyLength, len(key)))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, cryptoErr("key", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cryptoErr("key", err)
	}
	return &Box{aead: aead}, nil
}

// NewFromEnv crea una Box desde el entorno.
// Orden: CROSSPOST_MASTER_KEY (base64 std/raw, hex de 64 chars, o raw 32 bytes);
// si no está, deriva con argon2id desde CROSSPOST_MASTER_PASSPHRASE +
// CROSSPOST_MASTER_SALT.
func NewFromEnv() (*Box, error) {
	if raw := strings.TrimSpace(os.Getenv(keyEnvVar)); raw != "" {
		key, err := ParseKey(raw)
		if err != nil {
			return nil, err
		}
		return New(key)
	}
	pass := strings.TrimSpace(os.Getenv(passphraseEnvVar))
	if pass == "" {
		return nil, cryptoErr("key", fmt.Errorf("%s no seteada; genere una clave con: openssl rand -base64 32", keyEnvVar))
	}
	salt := strings.TrimSpace(os.Getenv(saltEnvVar))
	if salt == "" {
		return nil, cryptoErr("key", fmt.Errorf("%s requiere %s", passphraseEnvVar, saltEnvVar))
	}
	return New(DeriveKey(pass, []byte(salt)))
}

// ParseKey acepta una clave en base64 (std o raw), hex (64 chars) o raw (32 bytes).
func ParseKey(raw string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if b, err := base64.RawStdEncoding.DecodeString(raw); err == nil && len(b) == requiredKeyLength {
		return b, nil
	}
	if len(raw) == 64 {
		if h, err := hex.DecodeString(raw); err == nil {
			return h, nil
		}
	}
	if len(raw) == requiredKeyLength {
		return []byte(raw), nil
	}
	return nil, cryptoErr("key", fmt.Errorf("clave inválida: no decodifica a %d bytes", requiredKeyLength))
}

// DeriveKey deriva una clave de 32 bytes con argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, requiredKeyLength)
}

// Encrypt cifra plainText y devuelve base64(nonce)|base64(ciphertext).
func (b *Box) Encrypt(plainText string) (string, error) {
	nonce := make([]byte, nonceSizeGCM)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", cryptoErr("encrypt", fmt.Errorf("nonce random: %w", err))
	}

	ct := b.aead.Seal(nil, nonce, []byte(plainText), nil)

	nonceB64 := base64.StdEncoding.EncodeToString(nonce)
	ctB64 := base64.StdEncoding.EncodeToString(ct)
	return nonceB64 + sep + ctB64, nil
}

// Decrypt recibe base64(nonce)|base64(ciphertext) y devuelve el texto plano.
// Falla (sin plaintext parcial) si el formato es inválido o el tag GCM no
// verifica (clave equivocada o blob alterado).
func (b *Box) Decrypt(cipherText string) (string, error) {
	parts := strings.Split(cipherText, sep)
	if len(parts) != 2 {
		return "", cryptoErr("decrypt", errors.New("formato inválido: esperado base64(nonce)|base64(ciphertext)"))
	}
	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", cryptoErr("decrypt", fmt.Errorf("decode nonce: %w", err))
	}
	ct, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", cryptoErr("decrypt", fmt.Errorf("decode ciphertext: %w", err))
	}
	if len(nonce) != nonceSizeGCM {
		return "", cryptoErr("decrypt", fmt.Errorf("nonce inválido: esperado %d bytes, hay %d", nonceSizeGCM, len(nonce)))
	}

	pt, err := b.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", cryptoErr("decrypt", fmt.Errorf("gcm auth: %w", err))
	}
	return string(pt), nil
}
