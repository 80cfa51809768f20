package blog

import (
	"github.com/vinayprograms/blogcrew/crew"
	"github.com/vinayprograms/blogcrew/llm"
)

// Task names, also used as span and note provenance labels.
const (
	ResearchTaskName = "research"
	WriteTaskName    = "write"
)

// NewResearcher returns the research analyst agent. It may search the
// web and the notes gathered so far.
func NewResearcher(provider llm.Provider, model string) *crew.Agent {
	return &crew.Agent{
		Name: "researcher",
		Role: "Senior Research Analyst",
		Goal: "Uncover accurate, current and well-sourced information about {topic}",
		Backstory: "You work at a leading technology think tank. You are known for " +
			"separating signal from noise, checking claims against several sources and " +
			"keeping track of where every fact came from.",
		Tools:    []string{"web_search", "search_notes"},
		Provider: provider,
		Model:    model,
	}
}

// NewWriter returns the content writer agent. It may consult the notes
// collected by the researcher.
func NewWriter(provider llm.Provider, model string) *crew.Agent {
	return &crew.Agent{
		Name: "writer",
		Role: "Tech Content Strategist",
		Goal: "Craft an engaging, accurate blog post about {topic}",
		Backstory: "You are a renowned content strategist who turns dense research " +
			"into clear, readable articles for a technical audience without " +
			"sacrificing accuracy.",
		Tools:    []string{"search_notes"},
		Provider: provider,
		Model:    model,
	}
}

// ResearchTask asks the researcher for a findings report on {topic}.
func ResearchTask(researcher *crew.Agent) *crew.Task {
	return &crew.Task{
		Name: ResearchTaskName,
		Description: "Conduct a thorough investigation of {topic}. Identify the key " +
			"developments, notable players, open problems and practical implications. " +
			"Search the web for sources and cite the URLs you rely on.",
		ExpectedOutput: "A structured findings report in bullet points, each point " +
			"followed by its source URL.",
		Agent: researcher,
	}
}

// WriteTask asks the writer for a draft post built on the research.
func WriteTask(writer *crew.Agent) *crew.Task {
	return &crew.Task{
		Name: WriteTaskName,
		Description: "Using the research findings, write a blog post about {topic}. " +
			"Explain the important points in plain language, keep the tone engaging and " +
			"avoid claims the research does not support.",
		ExpectedOutput: "A complete blog post in Markdown with a title, an introduction, " +
			"at least three sections and a short conclusion.",
		Agent: writer,
	}
}
