package eval

import (
	"context"
	"fmt"
	"testing"

	"github.com/l3aro/go-template-script/pkg/value"
)

const benchExpr = "(a + b) * 2 - a % 3"

func benchStore() *value.Store {
	s := value.NewStore()
	s.Set("a", value.Int(7))
	s.Set("b", value.Int(5))
	return s
}

func BenchmarkExprCacheHit(b *testing.B) {
	c := NewExprCache(DefaultCacheSize)
	store := benchStore()
	c.program(DefaultNamespace, benchExpr, store)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.program(DefaultNamespace, benchExpr, store)
	}
}

func BenchmarkExprCacheMiss(b *testing.B) {
	c := NewExprCache(512)
	store := benchStore()
	exprs := make([]string, 4096)
	for i := range exprs {
		exprs[i] = fmt.Sprintf("a + b * %d", i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.program(DefaultNamespace, exprs[i%len(exprs)], store)
	}
}

// A dependency that keeps changing kind forces a recompile on every lookup.
func BenchmarkExprCacheRebind(b *testing.B) {
	c := NewExprCache(DefaultCacheSize)
	store := benchStore()
	c.program(DefaultNamespace, benchExpr, store)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if i%2 == 0 {
			store.Set("a", value.String("7"))
		} else {
			store.Set("a", value.Int(7))
		}
		c.program(DefaultNamespace, benchExpr, store)
	}
}

func BenchmarkEvalCachedVsTree(b *testing.B) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		ev   *Evaluator
	}{
		{"cached", New(WithCache(NewExprCache(DefaultCacheSize)))},
		{"tree", New()},
	} {
		b.Run(tc.name, func(b *testing.B) {
			store := benchStore()
			for i := 0; i < b.N; i++ {
				tc.ev.Eval(ctx, benchExpr, store)
			}
		})
	}
}
