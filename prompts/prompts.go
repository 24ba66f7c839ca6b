package prompts

import (
	_ "embed"
	"strings"
)

// Embedded prompt files

//go:embed agent_prefix.txt
var agentPrefix string

//go:embed agent_format.txt
var agentFormat string

//go:embed agent_suffix.txt
var agentSuffix string

//go:embed strict_qa.txt
var strictQA string

//go:embed code_generator.txt
var codeGenerator string

//go:embed ascii_diagram.txt
var asciiDiagram string

//go:embed parse_retry.txt
var parseRetry string

// Fixed sentences returned verbatim. Callers and tests compare against these exactly.
const (
	KnowledgeBaseRefusal = "I cannot answer this question based on the provided DSA knowledge base."
	OutOfDomainRefusal   = "I am specialized in Data Structures and Algorithms and can only answer questions related to that domain. I cannot answer general knowledge questions."
	NoCodeRefusal        = "I cannot generate code for that specific request."
	BudgetExhausted      = "I was unable to complete this request within the allowed reasoning steps. Please try rephrasing your question."
	GeneratedCodeSource  = "**Source: AI Generated Code**"
)

// ReasoningStops end a reasoning step before the model invents its own observation.
var ReasoningStops = []string{"\nObservation:", "\nObservation"}

// TerminalStops cut the Final Answer payload at the first sign of a new reasoning
// cycle, a repeated refusal, trailing filler, or a fresh code fence.
var TerminalStops = []string{
	"\nObservation:", "\nFinal Answer:", "\nAnswer:", "\nThought:", "\nAction:", "\nAction: None",
	"\nFor troubleshooting, visit:", "\n- ", "\nNote:", "\nFor further assistance:",
	"\nAdditional Info:", "\nDisclaimer:",
	"\nI hope this helps", "\nLet me know", "\nBest regards",
	"```\n\n```", "```python", "```java", "```javascript", "```",
	"\n" + KnowledgeBaseRefusal,
}

// CodeGeneratorStops stop on the closing fence or an echo of the request label.
var CodeGeneratorStops = []string{"```", "User request ="}

// DiagramStops keep conversational filler and agent markers out of the diagram.
var DiagramStops = []string{
	"```\n", "ASCII Diagram:", "Thought:", "Action:", "\nObservation:", "Final Answer:",
	"\nFor troubleshooting, visit:", "\nAnswer:", "\n- ", "\nNote:",
	"\nFor further assistance:", "\nAdditional Info:", "\nDisclaimer:", "```",
}

// AgentPrompt assembles the reasoning prompt from its prefix, format and suffix parts.
func AgentPrompt(tools, toolNames, chatHistory, input, scratchpad string) string {
	var b strings.Builder
	b.WriteString(render(agentPrefix, "{tools}", tools))
	b.WriteString("\n")
	b.WriteString(render(agentFormat, "{tool_names}", toolNames, "{out_of_domain}", OutOfDomainRefusal))
	b.WriteString("\n")
	b.WriteString(render(agentSuffix,
		"{chat_history}", chatHistory,
		"{input}", input,
		"{agent_scratchpad}", scratchpad))
	return strings.TrimRight(b.String(), "\n")
}

func StrictQA(context, question string) string {
	return render(strictQA, "{refusal}", KnowledgeBaseRefusal, "{context}", context, "{question}", question)
}

// CodeGenerator ends with an open fence so the model continues inside the code block.
func CodeGenerator(request string) string {
	return strings.TrimRight(render(codeGenerator, "{no_code}", NoCodeRefusal, "{request}", request), "\n")
}

// ASCIIDiagram ends with an open fence so the model continues inside the diagram block.
func ASCIIDiagram(description string) string {
	return strings.TrimRight(render(asciiDiagram, "{description}", description), "\n") + "\n"
}

func ParseRetry(toolNames string) string {
	return strings.TrimSpace(render(parseRetry, "{tool_names}", toolNames))
}

func render(tmpl string, oldnew ...string) string {
	return strings.NewReplacer(oldnew...).Replace(tmpl)
}
