package review

import (
	"fmt"

	"github.com/google/uuid"
)

// recordNamespace is the fixed UUID namespace for review record ids.
// Changing it would orphan every existing record, so it never changes.
var recordNamespace = uuid.MustParse("b1e7c6d4-3f52-4a08-9c1d-5e4f8a27c9e3")

// RecordID derives the deterministic review record id for one file of one
// pull request. The same (pull request id, file path) pair always yields the
// same id, which is what makes duplicate processing detectable.
func RecordID(prID int64, filePath string) string {
	return uuid.NewSHA1(recordNamespace, []byte(fmt.Sprintf("%d:%s", prID, filePath))).String()
}
