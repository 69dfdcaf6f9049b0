package firstblood

import "fmt"

// TestMessage is sent by the admin "test webhook" action.
const TestMessage = "🩸 First Blood test message from firstblood"

// Message renders the announcement for a first solve.
func Message(challengeName, solverName string) string {
	return fmt.Sprintf("🩸 **FIRST BLOOD!** 🩸\n**Challenge:** %s\n**Solved by:** %s", challengeName, solverName)
}
