package matching

import (
	"fmt"
	"strings"

	"alfredoptarigan/consultant-matcher/internal/index"
	"alfredoptarigan/consultant-matcher/internal/models"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildScoringPrompt creates the prompt that scores one batch of shortlisted candidates.
func (pb *PromptBuilder) BuildScoringPrompt(job *models.JobDescription, batch []Candidate) string {
	return fmt.Sprintf(`You are an expert technical recruiter assessing consultants for a %s position.

JOB DESCRIPTION:
Department: %s
%s

CANDIDATES:
%s

For every candidate, analyze the compatibility with the job description. Consider:
1. Skill overlap and relevance
2. Experience level compatibility
3. Domain expertise alignment
4. Overall fit for the role

The retrieval similarity is a rough hint computed from text embeddings, not a score.

Return a JSON array with exactly one object per candidate, in the same order:
[
  {
    "profile_id": "<profile id as given>",
    "score": <number between 0-100>,
    "matching_skills": [<skills the candidate has that the job requires>],
    "missing_skills": [<required skills the candidate lacks>],
    "reasoning": "<2-3 sentences explaining the match quality>"
  }
]`,
		job.Title, job.Department, JobText(job), formatCandidates(batch))
}

// BuildStrictScoringPrompt is used for the single retry after an unusable response.
func (pb *PromptBuilder) BuildStrictScoringPrompt(job *models.JobDescription, batch []Candidate) string {
	return pb.BuildScoringPrompt(job, batch) + fmt.Sprintf(`

Your previous answer could not be parsed. Respond with the JSON array only, no markdown and no commentary. It must contain %d objects.`, len(batch))
}

func formatCandidates(batch []Candidate) string {
	parts := make([]string, 0, len(batch))
	for n, c := range batch {
		parts = append(parts, fmt.Sprintf("--- Candidate %d ---\nProfile ID: %s\nRetrieval Similarity: %.1f\n%s",
			n+1, c.Profile.ID, c.Similarity, strings.TrimSpace(index.ProfileText(c.Profile))))
	}
	return strings.Join(parts, "\n\n")
}
