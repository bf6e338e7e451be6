package tutorials

import "time"

// Difficulty defaults applied when the remote item carries no metafield.
const (
	DefaultDifficulty    = "principiante"
	DefaultEstimatedTime = 30
)

// Tutorial is a locally authored learning guide mirrored to the catalog as a
// product tagged "tutorial".
type Tutorial struct {
	ID            int64      `json:"id"`
	RemoteID      *string    `json:"remote_id,omitempty"`
	Title         string     `json:"title" validate:"required,max=255"`
	Slug          string     `json:"slug" validate:"required,max=255"`
	Summary       string     `json:"summary"`
	Content       string     `json:"content"`
	Difficulty    string     `json:"difficulty" validate:"required"`
	EstimatedTime int        `json:"estimated_time" validate:"gt=0"`
	Published     bool       `json:"published"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
}

// Linked reports whether the tutorial has a remote counterpart.
func (t Tutorial) Linked() bool { return t.RemoteID != nil && *t.RemoteID != "" }
