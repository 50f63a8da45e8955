package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	_ "embed"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

//go:embed version.txt
var embeddedVersion string

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

type RsaKeyPair struct {
	Private string
	Public  string
}

func GetVersion() string {
	return strings.TrimSpace(embeddedVersion)
}

func GetNameAndVersion() string {
	return fmt.Sprintf("%s / %s", Name, GetVersion())
}

func PrettyPrint(i interface{}) string {
	s, _ := json.MarshalIndent(i, "", " ")
	return string(s)
}

// SetupLogging configures the global zerolog logger. Unknown levels fall back to info.
func SetupLogging(level string, pretty bool) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: consoleTimeFormat})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	log.Logger = logger.Level(lvl).With().Timestamp().Logger()
}

func GeneratePemKeypair(bitSize int) (*RsaKeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}

	keyPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		},
	)

	pubPEM := pem.EncodeToMemory(
		&pem.Block{
			Type:  "PUBLIC KEY",
			Bytes: pubDER,
		},
	)

	return &RsaKeyPair{Private: string(keyPEM), Public: string(pubPEM)}, nil
}

// LoadOrCreateKeypair reads the PEM private key at path, generating and
// persisting a new 2048 bit key when the file does not exist yet.
func LoadOrCreateKeypair(path string) (*RsaKeyPair, error) {
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		pair, err := GeneratePemKeypair(2048)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create key directory: %w", err)
		}
		if err := os.WriteFile(path, []byte(pair.Private), 0600); err != nil {
			return nil, fmt.Errorf("failed to write key: %w", err)
		}
		log.Info().Str("path", path).Msg("Generated new actor key")
		return pair, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	block, _ := pem.Decode(buf)
	if block == nil {
		return nil, fmt.Errorf("failed to parse PEM block in %s", path)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return &RsaKeyPair{Private: string(buf), Public: string(pubPEM)}, nil
}
