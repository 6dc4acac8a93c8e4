package retriever

import (
	"context"
	"fmt"
	"testing"

	"ragchat/internal/adapter/embedding"
	"ragchat/internal/adapter/memstore"
	"ragchat/internal/domain"
)

// qualityCorpus maps a source name to its text. Each query below has one
// source that answers it.
var qualityCorpus = map[string]string{
	"leave.md":      "Employees accrue paid vacation leave monthly and may carry over five days.",
	"expenses.md":   "Submit expense reports with receipts within thirty days of purchase.",
	"security.md":   "Rotate passwords every ninety days and enable two factor authentication.",
	"onboarding.md": "New hires receive a laptop and badge during the first onboarding week.",
	"travel.md":     "Book travel through the portal and choose economy fares for short flights.",
}

var qualityQueries = []struct {
	query    string
	relevant string
}{
	{"how much vacation leave carries over", "leave.md"},
	{"deadline for expense reports receipts", "expenses.md"},
	{"password rotation and two factor", "security.md"},
	{"laptop badge for new hires", "onboarding.md"},
	{"economy fares travel portal", "travel.md"},
}

func newQualityRetriever(tb testing.TB, opts Options) *SemanticRetriever {
	tb.Helper()
	emb := embedding.NewHashEmbedder(2048)
	idx := memstore.NewMemoryIndex(emb.Dimension())

	var (
		chunks []domain.Chunk
		texts  []string
	)
	for src, text := range qualityCorpus {
		chunks = append(chunks, domain.Chunk{Text: text, SourcePath: src, FileType: "md"})
		texts = append(texts, text)
	}
	vectors, err := emb.EmbedMany(context.Background(), texts)
	if err != nil {
		tb.Fatal(err)
	}
	if _, err := idx.Upsert(context.Background(), chunks, vectors); err != nil {
		tb.Fatal(err)
	}
	return NewSemanticRetriever(idx, emb, opts, nil)
}

func sources(passages []domain.Passage) []string {
	out := make([]string, len(passages))
	for i, p := range passages {
		out[i] = p.Source
	}
	return out
}

func reciprocalRank(retrieved []string, relevant string) float64 {
	for i, r := range retrieved {
		if r == relevant {
			return 1.0 / float64(i+1)
		}
	}
	return 0
}

func TestRetrievalQuality(t *testing.T) {
	cases := []struct {
		name    string
		opts    Options
		wantMRR float64
	}{
		{"cosine", Options{MinScore: 0.1}, 1.0},
		{"cosine_with_mmr", Options{MinScore: 0.1, MMRLambda: 0.7}, 1.0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newQualityRetriever(t, tc.opts)

			total := 0.0
			for _, q := range qualityQueries {
				passages, err := r.Retrieve(context.Background(), q.query, 3)
				if err != nil {
					t.Fatalf("retrieve %q: %v", q.query, err)
				}
				total += reciprocalRank(sources(passages), q.relevant)
			}
			mrr := total / float64(len(qualityQueries))
			if diff := mrr - tc.wantMRR; diff > 0.01 || diff < -0.01 {
				t.Errorf("MRR = %.3f, want %.3f", mrr, tc.wantMRR)
			}
		})
	}
}

func TestReciprocalRank(t *testing.T) {
	cases := []struct {
		retrieved []string
		want      float64
	}{
		{[]string{"a", "b", "c"}, 1.0},
		{[]string{"x", "a", "c"}, 0.5},
		{[]string{"x", "y", "a"}, 1.0 / 3},
		{[]string{"x", "y", "z"}, 0},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprint(tc.retrieved), func(t *testing.T) {
			if got := reciprocalRank(tc.retrieved, "a"); got != tc.want {
				t.Errorf("reciprocalRank = %.3f, want %.3f", got, tc.want)
			}
		})
	}
}

func BenchmarkRetrieve(b *testing.B) {
	r := newQualityRetriever(b, Options{MinScore: 0.1})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q := qualityQueries[i%len(qualityQueries)]
		if _, err := r.Retrieve(ctx, q.query, 3); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRetrieveMMR(b *testing.B) {
	r := newQualityRetriever(b, Options{MinScore: 0.1, MMRLambda: 0.7})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q := qualityQueries[i%len(qualityQueries)]
		if _, err := r.Retrieve(ctx, q.query, 3); err != nil {
			b.Fatal(err)
		}
	}
}
