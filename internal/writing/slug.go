package writing

import (
	"fmt"
	"strings"

	"github.com/jonathan/story-archiver/internal/story"
)

// maxSlugLen bounds slug length so derived paths stay manageable.
const maxSlugLen = 80

// SlugPath derives the container path for a story's payload:
// epub/<group>/<slug>-<key>.epub, where the slug comes from the story
// title and the group is the slug's first character. The key suffix
// keeps paths collision-free even for identical titles.
func SlugPath(s *story.Story) (string, error) {
	meta, err := s.Meta()
	if err != nil {
		return "", err
	}

	title, _ := meta.String("title")
	slug := Slugify(title)
	if slug == "" {
		slug = "story"
	}

	return fmt.Sprintf("epub/%c/%s-%d.epub", slug[0], slug, s.Key), nil
}

// Slugify normalizes a title into lowercase ASCII letters and digits
// separated by single dashes.
func Slugify(title string) string {
	var b strings.Builder
	dash := false

	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}

	return b.String()
}
