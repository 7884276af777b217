// Package groups loads the static per-group configuration: storage root,
// refresh credential, and the ordered member list. Each group lives in its
// own JSON file; a broken file disables that group only.
package groups

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// KnownGroups is the fixed set of group identifiers this service tracks.
var KnownGroups = []string{"nogi", "saku", "hina"}

const defaultRootPath = "data/messages"

// Group is one top-level partition of members sharing a remote API and a
// refresh credential. Immutable once loaded.
type Group struct {
	ID           string
	RootPath     string
	RefreshToken string
	Members      []Member
}

// Member belongs to exactly one Group. Name doubles as the storage
// subdirectory name.
type Member struct {
	ID   string
	Name string
}

// Load reads {grp}Config.json for every known group from dir. Groups whose
// file is missing or malformed are skipped with a warning and absent from
// the result; the remaining groups load normally.
func Load(dir string, log *slog.Logger) map[string]Group {
	if log == nil {
		log = slog.Default()
	}

	configs := make(map[string]Group, len(KnownGroups))
	for _, grp := range KnownGroups {
		path := filepath.Join(dir, grp+"Config.json")

		g, err := loadGroup(grp, path)
		if err != nil {
			log.Warn("skipping group config", "grp", grp, "path", path, "error", err)
			continue
		}
		configs[grp] = g
	}
	return configs
}

func loadGroup(grp, path string) (Group, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return Group{}, fmt.Errorf("failed to read group config: %w", err)
	}

	root := v.GetString("rootPath")
	if root == "" {
		root = v.GetString("root_path")
	}
	if root == "" {
		root = defaultRootPath
	}

	token := v.GetString("token")
	if token == "" {
		token = v.GetString("refresh_token")
	}

	raw, ok := v.Get("member").([]any)
	if !ok || len(raw) == 0 {
		raw, _ = v.Get("members").([]any)
	}

	members := make([]Member, 0, len(raw))
	for _, entry := range raw {
		fields, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		m := Member{
			ID:   asString(fields["id"]),
			Name: asString(fields["name"]),
		}
		if m.ID == "" || m.Name == "" {
			continue
		}
		members = append(members, m)
	}

	return Group{
		ID:           grp,
		RootPath:     root,
		RefreshToken: token,
		Members:      members,
	}, nil
}

// asString coerces the loosely typed JSON values to strings; member ids are
// numeric in the upstream files.
func asString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
