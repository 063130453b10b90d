package ui

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   " // parent has more siblings below
	TreeIndent     = "    " // parent was the last sibling
)

// BuildTreePrefix returns the connector for a node at depth. parentIsLast
// tells, for each ancestor level below depth, whether that ancestor was the
// last of its siblings.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}
	var prefix string
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			prefix += TreeIndent
		} else {
			prefix += TreeContinue
		}
	}
	if isLast {
		return prefix + TreeLastBranch
	}
	return prefix + TreeBranch
}
