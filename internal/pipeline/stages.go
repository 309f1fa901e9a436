package pipeline

import (
	"fmt"
	"strings"

	"github.com/shaiso/Vertex/internal/domain"
)

// StageSpec — описание одной стадии: персона агента и шаблон задачи.
//
// Персона уходит в system-промпт, задача — в user-промпт. Результаты
// предыдущих стадий добавляются к задаче как контекст.
type StageSpec struct {
	// Name — имя стадии.
	Name domain.StageName

	// Role — роль агента.
	Role string

	// Goal — цель агента.
	Goal string

	// Backstory — предыстория агента.
	Backstory string

	// Task — формулировка задачи. %s заменяется на промпт пользователя.
	Task string

	// Expected — ожидаемый формат результата.
	Expected string
}

// stageSpecs — реестр стадий пайплайна.
var stageSpecs = map[domain.StageName]StageSpec{
	domain.StageStrategy: {
		Name:      domain.StageStrategy,
		Role:      "Strategy Agent",
		Goal:      "DevRel strategy and competitor analysis",
		Backstory: "Expert in developer relations and technical marketing.",
		Task:      "DevRel strategy for: %s",
		Expected:  "Strategy plan with competitor insights.",
	},
	domain.StageContent: {
		Name:      domain.StageContent,
		Role:      "Content Agent",
		Goal:      "Generate technical content and code samples",
		Backstory: "Prolific technical writer and code generator.",
		Task:      "Generate blog/tutorial drafts and code samples.",
		Expected:  "Markdown content and code.",
	},
	domain.StageCommunity: {
		Name:      domain.StageCommunity,
		Role:      "Community Agent",
		Goal:      "Engage with developer community and craft social posts",
		Backstory: "Community manager and social media expert.",
		Task:      "Craft social posts and Discord replies.",
		Expected:  "Social post drafts.",
	},
	domain.StageAnalytics: {
		Name:      domain.StageAnalytics,
		Role:      "Analytics Agent",
		Goal:      "Analyze campaign metrics and suggest optimizations",
		Backstory: "Data-driven analyst for DevRel campaigns.",
		Task:      "Analyze campaign metrics and suggest optimizations.",
		Expected:  "JSON recommendations.",
	},
}

// SpecFor возвращает описание стадии.
func SpecFor(name domain.StageName) (StageSpec, error) {
	spec, ok := stageSpecs[name]
	if !ok {
		return StageSpec{}, fmt.Errorf("%w: %s", ErrUnknownStage, name)
	}
	return spec, nil
}

// SystemPrompt собирает system-промпт из персоны агента.
func (s StageSpec) SystemPrompt() string {
	return fmt.Sprintf("You are %s. Your goal: %s. %s", s.Role, s.Goal, s.Backstory)
}

// UserPrompt собирает user-промпт: задача, ожидаемый результат и
// контекст предыдущих стадий. Результаты failed-стадий в контекст
// не попадают.
func (s StageSpec) UserPrompt(userPrompt string, prior []domain.StageResult) string {
	var b strings.Builder

	task := s.Task
	interpolated := strings.Contains(task, "%s")
	if interpolated {
		task = fmt.Sprintf(task, userPrompt)
	}
	b.WriteString(task)
	b.WriteString("\n\nExpected output: ")
	b.WriteString(s.Expected)

	// Стадия без шаблона, запущенная первой (одиночный flow), иначе
	// не увидела бы запрос пользователя вовсе.
	if !interpolated && len(prior) == 0 {
		b.WriteString("\n\nRequest: ")
		b.WriteString(userPrompt)
	}

	for _, r := range prior {
		if r.Status != domain.StageStatusCompleted {
			continue
		}
		b.WriteString("\n\n--- Context from ")
		b.WriteString(string(r.StageName))
		b.WriteString(" stage ---\n")
		b.WriteString(r.Content)
	}

	return b.String()
}
