package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nishinokaede/yunaMessage/internal/database"
	"github.com/nishinokaede/yunaMessage/internal/groups"
	"github.com/nishinokaede/yunaMessage/internal/talkapi"
)

// IngestItem identifies one message processed during a run.
type IngestItem struct {
	Grp         string
	Member      string
	ID          string
	Type        string
	PublishedAt string
}

// IngestSummary aggregates the per-message results of one ingestion run
// across all groups and members.
type IngestSummary struct {
	Processed int
	Items     []IngestItem
}

// NewIngestTask creates the scheduled task that pulls new messages for
// every configured member.
func NewIngestTask(deps Deps) TaskFunc {
	return func(ctx context.Context) error {
		summary := IngestMessages(ctx, deps)
		deps.Logger.InfoContext(ctx, "Message ingestion run finished", "processed", summary.Processed)
		return nil
	}
}

// IngestMessages polls the timeline of every member of every configured
// group, materializes new messages to per-member storage, and upserts one
// row per message. Failures are contained at the smallest skippable unit:
// a group that fails to load, a member whose fetch fails, or a single
// message whose media or storage write fails.
func IngestMessages(ctx context.Context, deps Deps) IngestSummary {
	log := deps.Logger.With("task", "get_message")
	log.InfoContext(ctx, "Updating messages for all groups")
	startTime := time.Now()

	configs := groups.Load(deps.Config.Storage.GroupsDir, log)
	summary := IngestSummary{}

	for _, grp := range sortedGroupIDs(configs) {
		g := configs[grp]
		for _, member := range g.Members {
			if err := ingestMember(ctx, deps, g, member, &summary); err != nil {
				log.WarnContext(ctx, "Skipping member for this cycle",
					"grp", grp, "member", member.Name, "error", err)
			}
		}
	}

	log.InfoContext(ctx, "Message update complete",
		"processed", summary.Processed, "duration", time.Since(startTime))
	return summary
}

// ingestMember runs steps 1-10 for one member: directory and baseline setup,
// watermark computation, authorized timeline fetch, and per-message
// materialization. An error return abandons only this member.
func ingestMember(ctx context.Context, deps Deps, g groups.Group, member groups.Member, summary *IngestSummary) error {
	log := deps.Logger.With("task", "get_message", "grp", g.ID, "member", member.Name)

	dir := filepath.Join(g.RootPath, member.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create member directory: %w", err)
	}
	if err := ensureBaseline(dir, time.Now()); err != nil {
		return err
	}

	since, err := watermark(dir, time.Now())
	if err != nil {
		return err
	}

	token, err := deps.Store.LatestToken(ctx, g.ID)
	if err != nil {
		if errors.Is(err, database.ErrNoToken) {
			// No authorization yet; the next token refresh cycle fixes this.
			log.InfoContext(ctx, "No access token for group, skipping member")
			return nil
		}
		return err
	}

	messages, err := deps.Client.Timeline(ctx, g.ID, member.ID, token, since)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		if msg.State != "published" {
			continue
		}
		item, ok, err := processMessage(ctx, deps, g, member, dir, msg)
		if err != nil {
			log.WarnContext(ctx, "Skipping message", "msg_id", msg.ID.String(), "error", err)
			continue
		}
		if !ok {
			continue
		}
		summary.Processed++
		summary.Items = append(summary.Items, item)
	}

	return nil
}

// processMessage materializes one published timeline message: the media and
// text files named {msg_id}_{typeIndex}_{published_at}.{ext}, and the
// normalized database row. The bool result is false for message types the
// service does not track.
func processMessage(ctx context.Context, deps Deps, g groups.Group, member groups.Member, dir string, msg talkapi.TimelineMessage) (IngestItem, bool, error) {
	publishedAt := normalizePublishedAt(msg.PublishedAt)
	msgID := msg.ID.String()

	row := &database.Message{
		MsgID:       msgID,
		Grp:         g.ID,
		MemberID:    member.ID,
		MemberName:  member.Name,
		PublishedAt: publishedAt,
	}

	switch msg.Type {
	case "text":
		name := fmt.Sprintf("%s_0_%s.txt", msgID, publishedAt)
		if err := os.WriteFile(filepath.Join(dir, name), []byte(msg.Text), 0o644); err != nil {
			return IngestItem{}, false, fmt.Errorf("failed to write text file: %w", err)
		}
		row.MessageType = "text"
		row.TextContent = msg.Text

	case "picture":
		stem := fmt.Sprintf("%s_1_%s", msgID, publishedAt)
		// The caption file is written even when the text is empty.
		if err := os.WriteFile(filepath.Join(dir, stem+".txt"), []byte(msg.Text), 0o644); err != nil {
			return IngestItem{}, false, fmt.Errorf("failed to write caption file: %w", err)
		}
		filePath, err := saveMedia(ctx, deps, dir, stem+".jpg", msg.File, talkapi.MediaImage)
		if err != nil {
			return IngestItem{}, false, err
		}
		row.MessageType = "image"
		row.TextContent = msg.Text
		row.FilePath = filePath

	case "voice":
		name := fmt.Sprintf("%s_3_%s.m4a", msgID, publishedAt)
		filePath, err := saveMedia(ctx, deps, dir, name, msg.File, talkapi.MediaAudio)
		if err != nil {
			return IngestItem{}, false, err
		}
		row.MessageType = "audio"
		row.TextContent = msg.Text
		row.FilePath = filePath

	case "video":
		name := fmt.Sprintf("%s_2_%s.mp4", msgID, publishedAt)
		filePath, err := saveMedia(ctx, deps, dir, name, msg.File, talkapi.MediaVideo)
		if err != nil {
			return IngestItem{}, false, err
		}
		row.MessageType = "video"
		row.TextContent = msg.Text
		row.FilePath = filePath

	default:
		return IngestItem{}, false, nil
	}

	if err := deps.Store.UpsertMessage(ctx, row); err != nil {
		return IngestItem{}, false, err
	}

	return IngestItem{
		Grp:         g.ID,
		Member:      member.Name,
		ID:          msgID,
		Type:        msg.Type,
		PublishedAt: publishedAt,
	}, true, nil
}

// saveMedia downloads and writes one media file, returning the stored path.
// An empty media URL is not an error; the message simply has no file.
func saveMedia(ctx context.Context, deps Deps, dir, name, rawURL string, kind talkapi.MediaKind) (string, error) {
	if rawURL == "" {
		return "", nil
	}

	data, err := deps.Client.Download(ctx, rawURL, kind)
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return path, nil
}
