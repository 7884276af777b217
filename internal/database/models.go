package database

// Message is one ingested timeline message. Exactly one row exists per
// MsgID; repeated observations merge into the existing row rather than
// inserting a duplicate.
//
// PublishedAt is the upstream publish time normalized to the sortable
// 14-digit form YYYYMMDDHHMMSS. CreatedAt is the local ingestion time and
// is informational only.
type Message struct {
	ID          int64  `db:"id"`
	MsgID       string `db:"msg_id"`
	MessageType string `db:"message_type"` // text | image | audio | video
	TextContent string `db:"text_content"`
	FilePath    string `db:"file_path"`
	Grp         string `db:"grp"`
	MemberID    string `db:"member_id"`
	MemberName  string `db:"member_name"`
	PublishedAt string `db:"published_at"`
	CreatedAt   string `db:"created_at"`
}

// Token is one issued access token. The tokens table is an append-only
// audit log; only the most recently inserted row per group is considered
// valid for new requests.
type Token struct {
	ID        int64  `db:"id"`
	Token     string `db:"token"`
	Grp       string `db:"grp"`
	CreatedAt string `db:"created_at"`
}
