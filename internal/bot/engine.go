package bot

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Turn is one message of the conversation so far, oldest first.
type Turn struct {
	Author  string
	Content string
}

type pattern struct {
	keywords  []string
	responses []string
}

// patterns are checked in order; the first group with a keyword inside the
// lower-cased input wins.
var patterns = []pattern{
	{
		keywords: []string{"hi", "hello", "hey"},
		responses: []string{
			"Hello! How can I help you today?",
			"Hi there! What's on your mind?",
			"Greetings! How may I assist you?",
		},
	},
	{
		keywords: []string{"how are you", "how do you do"},
		responses: []string{
			"I'm functioning well, thank you! How can I help?",
			"I'm great, thanks for asking! What can I do for you?",
			"All systems operational! What would you like to discuss?",
		},
	},
	{
		keywords: []string{"bye", "goodbye", "see you"},
		responses: []string{
			"Goodbye! Have a great day!",
			"See you later! Take care!",
			"Bye for now! Feel free to return anytime!",
		},
	},
	{
		keywords: []string{"help", "what can you do"},
		responses: []string{
			"I can help with various tasks like:\n- Writing and coding\n- Answering questions\n- Problem-solving\n- Creative ideas\nWhat would you like help with?",
			"I'm here to assist with:\n- Programming help\n- General questions\n- Creative tasks\n- And more!\nWhat interests you?",
		},
	},
	{
		keywords: []string{"code", "programming", "develop"},
		responses: []string{
			"I can help with programming! Here's a simple example:\n```javascript\nfunction greet(name) {\n  return `Hello, ${name}!`;\n}\n```\nWhat would you like to create?",
			"Let's write some code! Here's a starter:\n```python\ndef calculate_sum(numbers):\n    return sum(numbers)\n```\nWhat programming language are you working with?",
		},
	},
	{
		keywords: []string{"react", "component", "jsx"},
		responses: []string{
			"Here's a simple React component example:\n```jsx\nfunction Button({ onClick, children }) {\n  return (\n    <button \n      onClick={onClick}\n      className='btn btn-primary'\n    >\n      {children}\n    </button>\n  );\n}\n```\nWhat are you building in React?",
			"Let's work with React! Here's a functional component:\n```jsx\nfunction Card({ title, description }) {\n  return (\n    <div className='card'>\n      <h2>{title}</h2>\n      <p>{description}</p>\n    </div>\n  );\n}\n```",
		},
	},
	{
		keywords: []string{"typescript", "type", "interface"},
		responses: []string{
			"Here's a TypeScript example:\n```typescript\ninterface User {\n  id: string;\n  name: string;\n  email?: string;\n}\n\nfunction getUser(id: string): User {\n  // Implementation\n}\n```\nWhat TypeScript concepts would you like to explore?",
		},
	},
	{
		keywords: []string{"test", "jest", "testing"},
		responses: []string{
			"Here's a Jest test example:\n```javascript\ndescribe('Calculator', () => {\n  test('adds numbers correctly', () => {\n    expect(add(2, 2)).toBe(4);\n  });\n});\n```\nWhat would you like to test?",
		},
	},
	{
		keywords: []string{"api", "fetch", "axios"},
		responses: []string{
			"Here's how to fetch data from an API:\n```javascript\nasync function fetchData() {\n  try {\n    const response = await fetch('https://api.example.com/data');\n    const data = await response.json();\n    return data;\n  } catch (error) {\n    console.error('Error:', error);\n  }\n}\n```\nWhat API are you working with?",
		},
	},
	{
		keywords: []string{"css", "style", "tailwind"},
		responses: []string{
			"Here's a Tailwind CSS example:\n```jsx\n<div className='flex items-center justify-between p-4 bg-white shadow rounded-lg hover:shadow-md transition-shadow'>\n  <h2 className='text-xl font-semibold text-gray-800'>Title</h2>\n  <button className='px-4 py-2 bg-blue-500 text-white rounded hover:bg-blue-600'>\n    Click me\n  </button>\n</div>\n```\nWhat are you styling?",
		},
	},
}

const (
	contextTurns   = 3
	contextSnippet = 30
)

var contextualTemplates = []string{
	`Based on our conversation about %s..., I understand you're asking about "%s". Could you provide more details?`,
	`Continuing our discussion about %s..., your question about "%s" is interesting. Let's explore that.`,
	`In the context of %s..., what specific aspects of "%s" would you like to explore?`,
	`Building on our conversation about %s..., I'd be happy to help with "%s". What would you like to know?`,
}

var generalTemplates = []string{
	`I understand you're asking about "%s". Could you provide more details?`,
	`That's an interesting point about "%s". Let me help you with that.`,
	`I see you're interested in "%s". What specific aspects would you like to explore?`,
	`I'd be happy to assist with "%s". What would you like to know specifically?`,
	`Let's explore "%s" together. What's your main goal or question?`,
}

// Engine fabricates replies from a fixed keyword table.
// Safe for concurrent use.
type Engine struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewEngine uses rnd for every random pick. A nil rnd is seeded from the clock.
func NewEngine(rnd *rand.Rand) *Engine {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{rnd: rnd}
}

func (e *Engine) pick(options []string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return options[e.rnd.Intn(len(options))]
}

// Respond returns the reply for input given the history that precedes it.
func (e *Engine) Respond(input string, history []Turn) string {
	lower := strings.ToLower(input)
	for _, p := range patterns {
		for _, kw := range p.keywords {
			if strings.Contains(lower, kw) {
				return e.pick(p.responses)
			}
		}
	}

	if recent := recentContext(history); recent != "" {
		return fmt.Sprintf(e.pick(contextualTemplates), firstRunes(recent, contextSnippet), input)
	}
	return fmt.Sprintf(e.pick(generalTemplates), input)
}

func recentContext(history []Turn) string {
	if len(history) > contextTurns {
		history = history[len(history)-contextTurns:]
	}
	parts := make([]string, 0, len(history))
	for _, t := range history {
		parts = append(parts, t.Content)
	}
	return strings.Join(parts, " ")
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
