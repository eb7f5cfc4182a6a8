// Package skills provides the default skill set available to a coding
// session: retrieval against an ingested corpus, and browser automation
// for verifying web UI changes. engine may be nil (no vector store
// configured); the retrieval skill then reports CanHandle false rather
// than erroring.
package skills

import (
	"github.com/loomwork/loom/pkg/retrieval"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/skills/browser"
	retrievalskill "github.com/loomwork/loom/skills/retrieval"
)

// All returns the default skill set for a coding session.
func All(engine *retrieval.Engine, screenshotDir string) []sdk.Skill {
	return []sdk.Skill{
		retrievalskill.New(engine),
		browser.New(screenshotDir),
	}
}

// Retrieval returns the corpus-query skill.
func Retrieval(engine *retrieval.Engine) sdk.Skill {
	return retrievalskill.New(engine)
}

// Browser returns the browser automation skill.
func Browser(screenshotDir string) sdk.Skill {
	return browser.New(screenshotDir)
}
