package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/ssargent/nvrec/pkg/record"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sendSuccess(w, map[string]string{"status": "healthy"})
}

// recordStatus must be called with mu held.
func (s *Server) recordStatus() RecordStatus {
	return RecordStatus{
		Header:  headerStatus(s.manager.Header()),
		Code:    s.manager.Err().String(),
		Payload: hex.EncodeToString(s.manager.Payload()),
		Dirty:   s.manager.IsDirty(),
	}
}

// handleGetRecord re-reads the record. A CRC result is reported in the
// body rather than as an HTTP error, since the record is then usable
// fresh-start state.
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.manager.Read(); err != nil && record.CodeOf(err) != record.CRC {
		s.log.ErrorContext(r.Context(), "record read failed", "error", err)
		sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendSuccess(w, s.recordStatus())
}

func (s *Server) handleSlots(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	infos, err := s.manager.Slots()
	s.mu.Unlock()

	if err != nil {
		sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	slots := make([]SlotStatus, len(infos))
	for i, info := range infos {
		slots[i] = SlotStatus{
			Slot:   info.Slot,
			Addr:   info.Addr,
			Newest: info.Newest,
			Header: headerStatus(info.Header),
		}
	}
	sendSuccess(w, slots)
}

func (s *Server) handlePatchPayload(w http.ResponseWriter, r *http.Request) {
	var req PatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	data, err := hex.DecodeString(req.Data)
	if err != nil {
		sendError(w, "data must be hex", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.manager.Read(); err != nil && record.CodeOf(err) != record.CRC {
		sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if _, err := s.manager.Patch(req.Offset, data); err != nil {
		sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.manager.Write(req.Force); err != nil {
		s.log.ErrorContext(r.Context(), "record write failed", "error", err)
		sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendSuccess(w, s.recordStatus())
}

func (s *Server) handleRollBack(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.manager.RollBack(); err != nil && record.CodeOf(err) != record.CRC {
		s.log.ErrorContext(r.Context(), "record rollback failed", "error", err)
		sendError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	sendSuccess(w, s.recordStatus())
}
