package runner

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/cpm-tools/corvil-extract/internal/command"
)

// ErrOutputExists is returned when an artifact is already on disk and the
// operator did not ask to overwrite it.
var ErrOutputExists = eris.New("runner: output already exists")

// CheckCollision applies the refuse-to-clobber policy to the plain and
// compressed artifact names. With overwrite set, existing artifacts and any
// manifests written for them are deleted; missing files are not an error.
func CheckCollision(paths command.Paths, overwrite bool) error {
	var found []string
	for _, p := range []string{paths.Plain, paths.Compressed} {
		if fileExists(p) {
			found = append(found, p)
		}
	}

	if !overwrite {
		if len(found) == 0 {
			return nil
		}
		zap.L().Error(paths.Stem+" found. Please delete or rerun with the overwrite flag.",
			zap.Strings("existing", found),
		)
		return eris.Wrapf(ErrOutputExists, "%s", strings.Join(found, ", "))
	}

	for _, p := range paths.Manifests {
		if fileExists(p) {
			found = append(found, p)
		}
	}
	for _, p := range found {
		zap.L().Info("Deleting "+p, zap.String("path", p))
		if err := removeIfExists(p); err != nil {
			return eris.Wrapf(err, "runner: delete %s", p)
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
