package intent

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// WordLists is the declared classifier configuration. The defaults mirror the
// bilingual (Spanish/English) lexicon the service has always shipped with;
// deployments can replace them wholesale from a YAML file.
type WordLists struct {
	// Casual phrases route short messages to the chat path.
	Casual []string `yaml:"casual"`
	// SimpleDefinition phrases route very short "what is X" questions to chat.
	SimpleDefinition []string `yaml:"simple_definition"`
	// Research phrases always force the orchestration path.
	Research []string `yaml:"research"`
	// Complexity phrases mark explicitly complex requests.
	Complexity []string `yaml:"complexity"`
	// ToolIndicating phrases mark requests that need tools.
	ToolIndicating []string `yaml:"tool_indicating"`
}

// DefaultWordLists returns the built-in lexicon.
func DefaultWordLists() WordLists {
	return WordLists{
		Casual: []string{
			// greetings
			"hola", "hi", "hello", "buenas", "buenos días", "buenas tardes", "buenas noches",
			"hey", "qué tal", "how are you", "cómo estás", "cómo va", "how is it going",
			// courtesies
			"gracias", "thanks", "thank you", "de nada", "por favor", "please",
			"disculpa", "perdón", "sorry", "excuse me",
			// questions about the assistant
			"quién eres", "who are you", "tu nombre", "your name", "cómo te llamas",
			"qué puedes hacer", "what can you do", "cuáles son tus funciones",
			// farewells
			"adiós", "bye", "goodbye", "hasta luego", "see you later", "nos vemos",
			// casual acknowledgements
			"está bien", "ok", "okay", "entiendo", "perfecto", "genial",
		},
		SimpleDefinition: []string{
			"qué es", "what is", "define", "explica brevemente", "explain briefly",
		},
		Research: []string{
			"informe", "report", "reporte", "investigación", "research",
			"análisis", "analysis", "estudio", "study", "resumen", "summary",
		},
		Complexity: []string{
			"crea", "create", "desarrolla", "develop", "diseña", "design",
			"compara en una tabla", "compare in a table", "haz una comparación",
			"elabora", "elaborate", "construye", "build", "implementa", "implement",
			"presentación", "presentation", "documento", "document",
			"busca y filtra", "find and filter", "evalúa y compara", "evaluate and compare",
			"procesa y analiza", "process and analyze", "recopila", "collect",
		},
		ToolIndicating: []string{
			// web search
			"busca", "search", "encuentra", "find", "obtén", "get",
			"descarga", "download", "consulta", "query", "revisa", "review",
			"verifica", "verify", "chequea", "check", "valida", "validate",
			// shell / file operations
			"lista", "list", "listar", "mostrar", "show", "ver", "view",
			"genera", "generate", "produce", "haz", "make",
			"ejecuta", "execute", "run", "comando", "command", "shell",
			// navigation
			"navega", "navigate", "abre", "open", "visita", "visit",
			"accede", "access", "entra", "enter", "conecta", "connect",
		},
	}
}

// LoadWordLists reads a lexicon from a YAML file. Empty sections fall back to
// the defaults so a partial override stays usable.
func LoadWordLists(path string) (WordLists, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WordLists{}, fmt.Errorf("read word lists: %w", err)
	}

	var lists WordLists
	if err := yaml.Unmarshal(data, &lists); err != nil {
		return WordLists{}, fmt.Errorf("parse word lists: %w", err)
	}

	defaults := DefaultWordLists()
	if len(lists.Casual) == 0 {
		lists.Casual = defaults.Casual
	}
	if len(lists.SimpleDefinition) == 0 {
		lists.SimpleDefinition = defaults.SimpleDefinition
	}
	if len(lists.Research) == 0 {
		lists.Research = defaults.Research
	}
	if len(lists.Complexity) == 0 {
		lists.Complexity = defaults.Complexity
	}
	if len(lists.ToolIndicating) == 0 {
		lists.ToolIndicating = defaults.ToolIndicating
	}
	return lists, nil
}
