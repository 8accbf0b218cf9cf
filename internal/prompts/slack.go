package prompts

import "strings"

// SuggestedPrompt is a canned question offered when a Slack assistant
// thread opens.
type SuggestedPrompt struct {
	Title   string
	Message string
}

// ExampleQuestions are the sample questions shared by the Slack welcome
// message, its suggested prompts, and the CLI banner.
var ExampleQuestions = []string{
	"¿Cuáles son los animales más rápidos del mundo?",
	"What is the largest animal on Earth?",
	"¿Por qué los gatos ronronean?",
	"How do penguins survive in cold weather?",
}

// Slack assistant status lines.
const (
	SlackStatusStarting = "🐾 Iniciando agente de animales..."
	SlackStatusThinking = "🐾 Buscando información sobre animales..."
)

// Slack fallback replies.
const (
	// SlackEmptyAnswer is posted when a run finishes without any
	// assistant text.
	SlackEmptyAnswer = "🐾 Estoy buscando información sobre animales. ¿Qué animal te interesa conocer?"

	// SlackApology is posted when a run fails. Error details stay in
	// the logs.
	SlackApology = "❌ Ocurrió un error al procesar tu pregunta. Por favor, intenta de nuevo."

	// SlackUnavailable is posted instead of running while the model
	// provider is unreachable.
	SlackUnavailable = "⏳ El servicio de respuestas no está disponible en este momento. Por favor, intenta de nuevo en unos minutos."
)

// SlackSuggestedPrompts returns the prompts offered on a new assistant
// thread. Titles are the questions themselves, trimmed for the chip.
func SlackSuggestedPrompts() []SuggestedPrompt {
	out := make([]SuggestedPrompt, 0, len(ExampleQuestions))
	for _, q := range ExampleQuestions {
		out = append(out, SuggestedPrompt{Title: truncate(q, 40), Message: q})
	}
	return out
}

// SlackWelcome returns the Markdown welcome message posted into a new
// assistant thread.
func SlackWelcome() string {
	var sb strings.Builder
	sb.WriteString("🐾 **Bienvenido al Agente de Animales**\n\n")
	sb.WriteString("Soy tu asistente especializado en responder preguntas sobre animales. Puedo ayudarte con:\n\n")
	sb.WriteString("- 🦁 Información sobre diferentes especies\n")
	sb.WriteString("- 🐾 Comportamiento animal\n")
	sb.WriteString("- 🌍 Hábitats y adaptaciones\n")
	sb.WriteString("- 🐕 Cuidado de mascotas\n")
	sb.WriteString("- 🦋 Datos curiosos sobre animales\n\n")
	sb.WriteString("**Ejemplos de preguntas:**\n\n")
	for _, q := range ExampleQuestions {
		sb.WriteString("- " + q + "\n")
	}
	sb.WriteString("\n¡Hazme cualquier pregunta sobre animales!")
	return sb.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
