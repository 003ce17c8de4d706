package models

import "time"

// Placeholder text written over redacted content during erasure.
const (
	MessageRedacted = "[Message supprimé]"
	CommentRedacted = "[Commentaire supprimé]"
)

// AnonymizedEmailDomain hosts generated replacement addresses. The domain is
// reserved so anonymized rows can never collide with a real mailbox.
const AnonymizedEmailDomain = "rgpd.invalid"

// UserProfile is the identifying slice of a user row. Secrets (password
// hash, tokens) are never part of this view.
type UserProfile struct {
	ID         string
	Email      string
	Nom        string
	Prenom     string
	Telephone  string
	Entreprise string
	Adresse    string
	Image      string
	Role       string
	CreatedAt  time.Time
}

// Message is a chat message authored by a user on a chantier.
type Message struct {
	ID        string
	UserID    string
	Contenu   string
	PhotoURL  *string
	CreatedAt time.Time
}

// Comment is a remark attached to a task or document.
type Comment struct {
	ID        string
	UserID    string
	Contenu   string
	PhotoURL  *string
	CreatedAt time.Time
}

// Document is an uploaded file owned by a user. Erasure hard-deletes these.
type Document struct {
	ID        string
	UserID    string
	Nom       string
	Chemin    string
	CreatedAt time.Time
}

// SubjectExport is the full data snapshot returned by an access request.
type SubjectExport struct {
	Profile        *UserProfile     `json:"profile"`
	Projects       []map[string]any `json:"projects"`
	Quotes         []map[string]any `json:"quotes"`
	Notifications  []map[string]any `json:"notifications"`
	Messages       []*Message       `json:"messages"`
	Comments       []*Comment       `json:"comments"`
	Documents      []*Document      `json:"documents"`
	Consents       []*Consent       `json:"consents"`
	Requests       []*RightsRequest `json:"requests"`
	ProcessingLogs []*ProcessingLog `json:"processing_logs"`
	ExportedAt     time.Time        `json:"exported_at"`
}
