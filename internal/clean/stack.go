package clean

import (
	"regexp"

	"webtap/pkg/model"
)

// maxFrames caps the retained stack depth after reduction.
const maxFrames = 10

// internalFramePatterns match framework machinery whose frames are dropped
// outright rather than cleaned.
var internalFramePatterns = []*regexp.Regexp{
	regexp.MustCompile(`node_modules/react-dom/`),
	regexp.MustCompile(`node_modules/scheduler/`),
	regexp.MustCompile(`node_modules/@?vue/runtime`),
	regexp.MustCompile(`webpack/(?:bootstrap|runtime)`),
	regexp.MustCompile(`^chrome-extension://`),
	regexp.MustCompile(`/@vite/client`),
}

func internalFrame(f model.StackFrame) bool {
	for _, re := range internalFramePatterns {
		if re.MatchString(f.File) || re.MatchString(f.Function) {
			return true
		}
	}
	return false
}

// Stack reduces a captured stack: internal framework frames are dropped,
// consecutive frames from the same source file collapse to the first
// occurrence, the rule set cleans what remains, and the result is capped at
// maxFrames.
func Stack(frames []model.StackFrame) []model.StackFrame {
	var out []model.StackFrame
	lastFile := ""
	for _, f := range frames {
		if internalFrame(f) {
			continue
		}
		cleaned := model.StackFrame{
			Function: Message(f.Function),
			File:     Message(f.File),
			Line:     f.Line,
			Column:   f.Column,
		}
		if cleaned.File != "" && cleaned.File == lastFile {
			continue
		}
		lastFile = cleaned.File
		out = append(out, cleaned)
		if len(out) == maxFrames {
			break
		}
	}
	return out
}
