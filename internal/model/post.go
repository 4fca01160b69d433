package model

// MaxContentLength is the longest post body the composer accepts.
const MaxContentLength = 280

type PostStatus string

const (
	PostStatusDraft     PostStatus = "draft"
	PostStatusPublished PostStatus = "published"
	PostStatusScheduled PostStatus = "scheduled"
	PostStatusFailed    PostStatus = "failed"
)

// Post is a server-owned post record. It is never mutated locally.
type Post struct {
	ID             int64      `json:"id"`
	Content        string     `json:"content"`
	Title          string     `json:"title,omitempty"`
	Platforms      []string   `json:"platforms"`
	MediaURLs      []string   `json:"media_urls"`
	Tags           []string   `json:"tags,omitempty"`
	Status         PostStatus `json:"status"`
	ScheduleDate   *Timestamp `json:"schedule_date"`
	AyrsharePostID *string    `json:"ayrshare_post_id"`
	CreatedAt      Timestamp  `json:"created_at"`
}

// CreatePostRequest is the payload of POST /posts/. Optional fields are
// nil when unset and are then omitted from the encoded body.
type CreatePostRequest struct {
	Content      string     `json:"content"`
	Platforms    []string   `json:"platforms"`
	MediaURLs    []string   `json:"media_urls,omitempty"`
	Title        *string    `json:"title,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	ScheduleDate *Timestamp `json:"schedule_date,omitempty"`
}

// Message is the generic acknowledgement body returned by delete endpoints.
type Message struct {
	Message string `json:"message"`
}
