package blobstore

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutputPath builds the object path for a rendered audio artifact:
// {owner}/{basename}_{timestamp}_{suffix}.mp3. The random suffix keeps
// repeated conversions of the same document from colliding.
func OutputPath(ownerID uuid.UUID, documentName string) string {
	base := documentName
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	base = sanitize(base)
	if base == "" {
		base = "audio"
	}

	timestamp := time.Now().UTC().Format("20060102_150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]

	return fmt.Sprintf("%s/%s_%s_%s.mp3", ownerID, base, timestamp, suffix)
}

// sanitize keeps object paths flat and portable.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	return b.String()
}
