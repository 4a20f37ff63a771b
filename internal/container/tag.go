package container

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goombaio/namegenerator"
	"github.com/google/go-containerregistry/pkg/name"

	"github.com/banksean/toast/internal/toasterr"
)

var tagCounter atomic.Int64

func randomSeed() int64 {
	return time.Now().UTC().UnixNano() + tagCounter.Add(1)
}

// RandomTag returns a human-readable image tag made of repoPrefix followed
// by a randomly generated name, for the temporary images that are
// committed only to be pushed, run, or used as a seed and then deleted.
func RandomTag(repoPrefix string) string {
	generator := namegenerator.NewNameGenerator(randomSeed())
	suffix := strings.ToLower(generator.Generate())
	return fmt.Sprintf("%s%s", repoPrefix, suffix)
}

// ValidateTag checks that image is a syntactically valid container image
// reference before it's ever handed to the container engine CLI.
func ValidateTag(image string) error {
	if _, err := name.ParseReference(image); err != nil {
		return toasterr.User(fmt.Sprintf("`%s` is not a valid image reference.", image), err)
	}
	return nil
}
