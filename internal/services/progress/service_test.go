package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satdigital/internal/domain"
)

func sections(n int) []domain.TechnicalSection {
	out := make([]domain.TechnicalSection, 0, n+1)
	for i := 0; i < n; i++ {
		out = append(out, domain.TechnicalSection{ID: string(rune('a' + i)), Obligatory: true})
	}
	return append(out, domain.TechnicalSection{ID: "optional"})
}

func docsFor(ids ...string) []domain.Document {
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Document{SectionID: id, Version: 1})
	}
	return out
}

func TestComputePercent(t *testing.T) {
	cases := []struct {
		name   string
		total  int
		docs   []string
		want   int
		status domain.SectionStatus
	}{
		{"none", 5, nil, 0, domain.SectionMissing},
		{"three of five", 5, []string{"a", "b", "c"}, 60, domain.SectionPartial},
		{"all", 5, []string{"a", "b", "c", "d", "e"}, 100, domain.SectionComplete},
		{"optional only", 5, []string{"optional"}, 0, domain.SectionMissing},
		{"two of three rounds", 3, []string{"a", "b"}, 67, domain.SectionPartial},
		{"no obligatory sections", 0, nil, 100, domain.SectionComplete},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Compute("a1", sections(tc.total), docsFor(tc.docs...), nil)
			assert.Equal(t, tc.want, p.Percent)
			assert.Equal(t, tc.status, p.Status)
		})
	}
}

func TestNearlyCompleteIsNotComplete(t *testing.T) {
	docs := make([]string, 0, 199)
	secs := make([]domain.TechnicalSection, 0, 200)
	for i := 0; i < 200; i++ {
		id := string(rune(0x100 + i))
		secs = append(secs, domain.TechnicalSection{ID: id, Obligatory: true})
		if i > 0 {
			docs = append(docs, id)
		}
	}
	p := Compute("a1", secs, docsFor(docs...), nil)
	assert.Equal(t, 100, p.Percent)
	assert.Equal(t, domain.SectionPartial, p.Status)
	assert.False(t, p.ObligatoryComplete())
}

func TestCompletionAndComplianceStayApart(t *testing.T) {
	docs := []domain.Document{
		{SectionID: "a", Version: 2},
		{SectionID: "b", Version: 1},
		{SectionID: "c", Version: 1},
	}
	evals := []domain.Evaluation{
		{SectionID: "a", Result: domain.ResultCompliant, DocumentVersion: 1},
		{SectionID: "b", Result: domain.ResultNonCompliant, DocumentVersion: 1},
		{SectionID: "c", Result: domain.ResultCompliantObservations, DocumentVersion: 1, RequiresClarification: true},
	}
	p := Compute("a1", sections(3), docs, evals)
	require.Len(t, p.PerSection, 4)

	a, b, c := p.PerSection[0], p.PerSection[1], p.PerSection[2]
	assert.Equal(t, domain.SectionComplete, a.Status)
	assert.False(t, a.Evaluated, "evaluation of a superseded version does not count")
	assert.Equal(t, domain.CompliancePending, a.Compliance)

	assert.Equal(t, domain.SectionComplete, b.Status)
	assert.True(t, b.Evaluated)
	assert.Equal(t, domain.ComplianceNonCompliant, b.Compliance)

	assert.Equal(t, domain.ComplianceCompliant, c.Compliance)
	assert.True(t, c.RequiresClarification)

	assert.Equal(t, 100, p.Percent)
	assert.True(t, p.ObligatoryComplete())
	assert.False(t, p.ObligatoryEvaluated())
	assert.True(t, p.ClarificationPending())
}
