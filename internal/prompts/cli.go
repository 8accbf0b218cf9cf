package prompts

import (
	"fmt"
	"strings"
)

// QuitWords end an interactive chat session (case-insensitive).
var QuitWords = []string{"salir", "exit", "quit", "q"}

// IsQuit reports whether a line of input asks to leave the chat.
func IsQuit(line string) bool {
	line = strings.ToLower(strings.TrimSpace(line))
	for _, w := range QuitWords {
		if line == w {
			return true
		}
	}
	return false
}

// ResetWords clear the conversation so the next question starts fresh
// (case-insensitive).
var ResetWords = []string{"reiniciar", "reset", "nueva conversación"}

// IsReset reports whether a message asks to clear the conversation.
func IsReset(line string) bool {
	line = strings.ToLower(strings.TrimSpace(line))
	for _, w := range ResetWords {
		if line == w {
			return true
		}
	}
	return false
}

// ResetDone confirms a cleared conversation in the CLI and in Slack.
const ResetDone = "🔄 Conversación reiniciada. ¿Sobre qué animal quieres saber?"

// moreQuestions extend ExampleQuestions in the CLI banner and demo run.
var moreQuestions = []string{
	"¿Cuánto tiempo viven las tortugas?",
	"What animals migrate during winter?",
	"¿Cuáles son los animales más inteligentes?",
	"How do bees communicate?",
}

// DemoQuestions are asked in order by the non-interactive demo.
func DemoQuestions() []string {
	return append(append([]string{}, ExampleQuestions...), moreQuestions[:2]...)
}

// ChatPrompt is shown before each line of input.
const ChatPrompt = "🐾 Tu pregunta sobre animales: "

// ChatFarewell is printed when the chat ends.
const ChatFarewell = "👋 ¡Hasta luego! Gracias por usar el agente de animales."

// ChatApology is printed when a question fails; the session continues.
const ChatApology = "❌ Ocurrió un error al procesar tu pregunta. 🔄 Continuando..."

// ChatBanner returns the interactive-mode banner listing example
// questions and the quit words.
func ChatBanner(tools []string) string {
	rule := strings.Repeat("=", 60)
	var sb strings.Builder
	sb.WriteString("🎯 MODO INTERACTIVO - AGENTE DE ANIMALES\n")
	sb.WriteString(rule + "\n")
	sb.WriteString("💡 Ejemplos de preguntas que puedes hacer:\n")
	for _, q := range append(append([]string{}, ExampleQuestions...), moreQuestions...) {
		sb.WriteString("   • " + q + "\n")
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "📝 Escribe %s para terminar\n", quotedList(QuitWords))
	sb.WriteString("🔄 El agente mantiene contexto entre preguntas\n")
	fmt.Fprintf(&sb, "🧹 Escribe %s para empezar de nuevo\n", quotedList(ResetWords))
	fmt.Fprintf(&sb, "🔧 Herramientas disponibles: %s\n", strings.Join(tools, ", "))
	sb.WriteString(rule + "\n")
	return sb.String()
}

func quotedList(words []string) string {
	q := make([]string, len(words))
	for i, w := range words {
		q[i] = "'" + w + "'"
	}
	if len(q) < 2 {
		return strings.Join(q, "")
	}
	return strings.Join(q[:len(q)-1], ", ") + " o " + q[len(q)-1]
}
