package world

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

type AuditEntry struct {
	Tick    uint64         `json:"tick"`
	Actor   string         `json:"actor"`
	Action  string         `json:"action"` // e.g. "FLAG_PICKUP"
	Realm   string         `json:"realm"`
	Pos     [3]int         `json:"pos"`
	Reason  string         `json:"reason,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// AuditFunc adapts a function to AuditLogger.
type AuditFunc func(AuditEntry) error

func (f AuditFunc) WriteAudit(e AuditEntry) error { return f(e) }

// MultiAudit fans an entry out to every non-nil logger. Errors are ignored.
type MultiAudit []AuditLogger

func (m MultiAudit) WriteAudit(entry AuditEntry) error {
	for _, l := range m {
		if l != nil {
			_ = l.WriteAudit(entry)
		}
	}
	return nil
}

func (w *World) SetAuditLogger(l AuditLogger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.audit = l
}

// Audit records entry on the configured logger, if any.
func (w *World) Audit(entry AuditEntry) {
	w.mu.RLock()
	l := w.audit
	w.mu.RUnlock()
	if l != nil {
		_ = l.WriteAudit(entry)
	}
}

func (w *World) auditEntity(r *Region, e *Entity, action, reason string) {
	loc := e.Location()
	w.Audit(AuditEntry{
		Tick:   r.Tick(),
		Actor:  e.ID().String(),
		Action: action,
		Realm:  loc.Realm,
		Pos:    loc.Pos.ToArray(),
		Reason: reason,
	})
}
