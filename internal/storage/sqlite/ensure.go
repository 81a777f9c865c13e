package sqlite

import (
	"github.com/gamecodelab/gamecode/internal/profile"
	"github.com/gamecodelab/gamecode/internal/project"
)

// Ensure SQLite stores implement the storage interfaces.
var (
	_ profile.Store = (*LearnerStore)(nil)
	_ project.Store = (*ProjectStore)(nil)
)
