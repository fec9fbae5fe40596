package match

// AlwaysExcluded is pruned from every traversal and subscription regardless
// of configuration.
var AlwaysExcluded = Expression{
	".git",
	".git/**",
	"**/node_modules",
	"**/node_modules/**",
}

// Excluder builds the traversal matcher from the always-excluded set plus
// instance-level exclusions.
func Excluder(extra ...string) (*Matcher, error) {
	exclude := make(Expression, 0, len(AlwaysExcluded)+len(extra))
	exclude = append(exclude, AlwaysExcluded...)
	exclude = append(exclude, extra...)
	return Compile(&Matchable{Exclude: exclude})
}
