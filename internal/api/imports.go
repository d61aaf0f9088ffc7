package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/clubejota/clube/internal/app/importer"
)

// ─── Import API ─────────────────────────────────────────────────────────────
// POST   /api/imports              CSV body, returns the previewed batch (?rate=)
// GET    /api/imports/{id}         previewed batch
// POST   /api/imports/{id}/commit  apply the batch, returns the result report
// DELETE /api/imports/{id}         discard the batch

// maxExportBytes bounds an uploaded export.
const maxExportBytes = 10 << 20

// pendingImports holds previewed batches until they are committed,
// cancelled or expire.
type pendingImports struct {
	mu      sync.Mutex
	batches map[string]*importer.Batch
	ttl     time.Duration
	now     func() time.Time
}

func newPendingImports(ttl time.Duration) *pendingImports {
	return &pendingImports{
		batches: make(map[string]*importer.Batch),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (p *pendingImports) put(b *importer.Batch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep()
	p.batches[b.ID] = b
}

func (p *pendingImports) get(id string) (*importer.Batch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep()
	b, ok := p.batches[id]
	return b, ok
}

// take removes and returns a batch, so a batch is committed at most once.
func (p *pendingImports) take(id string) (*importer.Batch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sweep()
	b, ok := p.batches[id]
	delete(p.batches, id)
	return b, ok
}

// sweep drops expired batches. Callers hold p.mu.
func (p *pendingImports) sweep() {
	cutoff := p.now().Add(-p.ttl)
	for id, b := range p.batches {
		if b.CreatedAt.Before(cutoff) {
			delete(p.batches, id)
		}
	}
}

func (s *Server) handlePreviewImport(w http.ResponseWriter, r *http.Request) {
	rate := s.ledger.CashbackRate()
	if v := r.URL.Query().Get("rate"); v != "" {
		parsed, err := decimal.NewFromString(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid rate: "+v)
			return
		}
		rate = parsed
	}

	body := http.MaxBytesReader(w, r.Body, maxExportBytes)
	b, err := s.importer.PreviewExport(r.Context(), ActorFromContext(r.Context()), body, rate)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err.Error())
			return
		}
		s.writeDomainError(w, r, err)
		return
	}
	s.pending.put(b)
	writeJSON(w, http.StatusCreated, b)
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	b, ok := s.pending.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "import_not_found", "import batch not found or already committed")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleCommitImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b, ok := s.pending.take(id)
	if !ok {
		writeError(w, http.StatusNotFound, "import_not_found", "import batch not found or already committed")
		return
	}

	res, err := s.importer.Commit(r.Context(), b, ActorFromContext(r.Context()))
	if res == nil {
		// Nothing was attempted; the batch can be committed again.
		s.pending.put(b)
		s.writeDomainError(w, r, err)
		return
	}
	if err != nil {
		s.log.Error("import commit aborted", "batch", id, "error", err)
		writeJSON(w, statusFor(err), map[string]interface{}{
			"result": res,
			"error":  map[string]string{"code": "import_aborted", "message": err.Error()},
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": res})
}

func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.pending.take(chi.URLParam(r, "id")); !ok {
		writeError(w, http.StatusNotFound, "import_not_found", "import batch not found or already committed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
