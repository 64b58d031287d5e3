package api

import (
	"github.com/ssargent/nvrec/pkg/codec"
	"github.com/ssargent/nvrec/pkg/record"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the status server
type ServerConfig struct {
	Listen         string   // Address to listen on, e.g. ":9464"
	APIKey         string   // Required for mutating routes; empty disables them
	AllowedOrigins []string // CORS origins for read-only routes; empty disables CORS
}

// HeaderStatus is the JSON form of a record header
type HeaderStatus struct {
	Checksum      uint32 `json:"checksum"`
	Edition       uint32 `json:"edition"`
	Valid         bool   `json:"valid"`
	PayloadLength uint16 `json:"payload_length"`
	Format        uint16 `json:"format"`
}

// RecordStatus is returned by GET /api/v1/record
type RecordStatus struct {
	Header  HeaderStatus `json:"header"`
	Code    string       `json:"code"`
	Payload string       `json:"payload"` // hex
	Dirty   bool         `json:"dirty"`
}

// SlotStatus is one entry of GET /api/v1/slots
type SlotStatus struct {
	Slot   int          `json:"slot"`
	Addr   int          `json:"addr"`
	Newest bool         `json:"newest"`
	Header HeaderStatus `json:"header"`
}

// PatchRequest is the body of PUT /api/v1/record/payload
type PatchRequest struct {
	Offset int    `json:"offset"`
	Data   string `json:"data"` // hex
	Force  bool   `json:"force"`
}

func headerStatus(h codec.Header) HeaderStatus {
	return HeaderStatus{
		Checksum:      h.Checksum,
		Edition:       h.Edition,
		Valid:         h.Valid(),
		PayloadLength: h.PayloadLength,
		Format:        h.Format,
	}
}

// RecordManager is the subset of *record.Manager the server uses.
type RecordManager interface {
	Read() error
	Write(force bool) error
	RollBack() error
	Err() record.Code
	IsDirty() bool
	Patch(offset int, data []byte) (bool, error)
	Header() codec.Header
	Payload() []byte
	Slots() ([]record.SlotInfo, error)
}
