package tutor

import (
	"fmt"
	"strings"

	"github.com/gamecodelab/gamecode/internal/progression"
)

const (
	explainSystem  = `You are a patient programming teaching assistant. Explain code in plain language a beginner can follow.`
	gradeSystem    = `You are a strict but friendly code reviewer. Score the student's code from 0 to 100 and give feedback.`
	diagnoseSystem = `You are a patient programming mentor. Help the student find the problem in their code and show how to fix it.`
	hintSystem     = `You are a programming learning assistant. Give progressive hints that help the student finish the task themselves. Never hand over the full answer.`
	exerciseSystem = `You are a programming education expert who designs practice exercises.`
	chatSystem     = `You are CodeMentor, a friendly and professional programming mentor. Help students learn HTML, CSS and JavaScript. Keep answers short, accurate and encouraging for beginners.`
)

func fence(language, code string) string {
	return fmt.Sprintf("```%s\n%s\n```", language, code)
}

func explainPrompt(req ExplainRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Explain what the following %s code does:\n\n%s\n", req.Language, fence(req.Language, req.Code))
	if req.Context != "" {
		fmt.Fprintf(&sb, "\nContext: %s\n", req.Context)
	}
	sb.WriteString("\nGo through it line by line, then describe the overall behaviour.")
	return sb.String()
}

func gradePrompt(req GradeRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task requirements:\n%s\n\n", req.Requirements)
	fmt.Fprintf(&sb, "Student %s code:\n%s\n\n", req.Language, fence(req.Language, req.Code))
	sb.WriteString("Grade it in this format:\n")
	sb.WriteString("Total score: <0-100>\n")
	sb.WriteString("Then assess completeness, code style and performance, and finish with numbered improvement suggestions.")
	return sb.String()
}

func diagnosePrompt(req DiagnoseRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Diagnose the problem in this %s code:\n\n%s\n", req.Language, fence(req.Language, req.Code))
	if req.ErrorMessage != "" {
		fmt.Fprintf(&sb, "\nError message: %s\n", req.ErrorMessage)
	}
	sb.WriteString("\nAnswer with:\nProblem: <what is wrong>\nFix: <how to fix it>\nThen the corrected code in one fenced block.")
	return sb.String()
}

func hintPrompt(req HintRequest) string {
	return fmt.Sprintf("Task: %s\n\nStudent's current code:\n%s\n\nGive the next hint only, not the complete answer.",
		req.Task, fence(req.Language, req.Code))
}

func exercisePrompt(req ExerciseRequest) string {
	return fmt.Sprintf("Create one %s %s practice exercise about %q.\n\nInclude:\n1. Title: <title>\n2. A detailed description\n3. Starter code\n4. A reference solution\n5. Three progressive hints",
		difficultyWord(req.Difficulty), req.Language, req.Topic)
}

func difficultyWord(d progression.Difficulty) string {
	switch d {
	case progression.DifficultyMedium:
		return "medium"
	case progression.DifficultyHard:
		return "hard"
	}
	return "easy"
}
