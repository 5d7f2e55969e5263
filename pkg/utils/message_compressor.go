package utils

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Cabecera de un byte que precede a cada mensaje
const (
	flagPlain byte = 0
	flagZstd  byte = 1
)

// ErrEmptyMessage se devuelve al descomprimir un mensaje sin cabecera
var ErrEmptyMessage = errors.New("empty message")

// MessageCompressor comprime con zstd los mensajes que superan un umbral
type MessageCompressor struct {
	// Umbral en bytes a partir del cual comprimir mensajes; 0 desactiva la compresión
	threshold int
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

// NewMessageCompressor crea una nueva instancia de MessageCompressor.
// level va de 1 (más rápido) a 4 (mejor compresión).
func NewMessageCompressor(threshold, level int) (*MessageCompressor, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(levelToZstd(level)))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &MessageCompressor{
		threshold: threshold,
		encoder:   encoder,
		decoder:   decoder,
	}, nil
}

// CompressMessage antepone la cabecera y comprime el mensaje si es necesario.
// Devuelve true cuando el resultado va comprimido.
func (c *MessageCompressor) CompressMessage(message []byte) ([]byte, bool) {
	if c.threshold > 0 && len(message) >= c.threshold {
		compressed := c.encoder.EncodeAll(message, []byte{flagZstd})

		// Comprobar si la compresión redujo realmente el tamaño
		if len(compressed) < len(message)+1 {
			return compressed, true
		}
	}

	result := make([]byte, len(message)+1)
	result[0] = flagPlain
	copy(result[1:], message)
	return result, false
}

// DecompressMessage quita la cabecera y descomprime el mensaje si es necesario
func (c *MessageCompressor) DecompressMessage(message []byte) ([]byte, error) {
	if len(message) == 0 {
		return nil, ErrEmptyMessage
	}

	switch message[0] {
	case flagPlain:
		return message[1:], nil
	case flagZstd:
		return c.decoder.DecodeAll(message[1:], nil)
	default:
		return nil, fmt.Errorf("unknown message flag %#x", message[0])
	}
}

// Close libera el codificador y el decodificador
func (c *MessageCompressor) Close() {
	c.encoder.Close()
	c.decoder.Close()
}

func levelToZstd(level int) zstd.EncoderLevel {
	switch level {
	case 2:
		return zstd.SpeedDefault
	case 3:
		return zstd.SpeedBetterCompression
	case 4:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedFastest
	}
}
