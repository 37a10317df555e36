package agent

import (
	"context"
	"fmt"
)

// DemoModel is reported by the demo generator.
const DemoModel = "demo"

// DemoGenerator answers without any provider. It is used whenever no AI
// credential is configured.
type DemoGenerator struct{}

// NewDemoGenerator creates a DemoGenerator.
func NewDemoGenerator() *DemoGenerator {
	return &DemoGenerator{}
}

// Model returns DemoModel.
func (g *DemoGenerator) Model() string {
	return DemoModel
}

// Generate describes the request instead of answering it.
func (g *DemoGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	last := req.LastUserMessage()
	if last == "" {
		last = "None"
	}

	return fmt.Sprintf(`**Demo Mode - AI Agent Response**

**Context**: %s

**Your last message**: "%s"

**Available Capabilities**:
- Desktop automation in remote sandboxes
- Browser automation
- File system operations
- Screenshot capture and analysis
- System monitoring and control

**Demo Actions**:
To demonstrate capabilities, I would:
1. Capture current desktop screenshot
2. Analyze UI elements for interaction
3. Execute requested actions
4. Provide real-time feedback

Configure an AI provider key to enable full responses.

Try asking: "Open browser and navigate to GitHub" or "Create a new file in the editor"
`, req.Context, last), nil
}
