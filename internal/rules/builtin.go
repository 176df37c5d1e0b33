package rules

// RegisterBuiltins adds built-in conditions and filters to builder.
// Params: registry builder; actions are registered by the caller.
// Returns: same builder for chaining.
func RegisterBuiltins(b *Builder) *Builder {
	return b.
		Condition(KindEveryEvent, EvaluatorFunc(everyEvent)).
		Condition(KindFirstSeenEvent, EvaluatorFunc(firstSeenEvent)).
		Condition(KindRegressionEvent, EvaluatorFunc(regressionEvent)).
		Condition(KindReappearedEvent, EvaluatorFunc(reappearedEvent)).
		Condition(KindEscalatingEvent, EvaluatorFunc(escalatingEvent)).
		Condition(KindNewHighPriorityIssue, EvaluatorFunc(newHighPriorityIssue)).
		SlowCondition(KindEventFrequency, FrequencyCondition{Handler: KindEventFrequency}).
		SlowCondition(KindEventUniqueUserFrequency, FrequencyCondition{Handler: KindEventUniqueUserFrequency}).
		Filter(KindLevel, EvaluatorFunc(levelFilter)).
		Filter(KindTaggedEvent, EvaluatorFunc(taggedEventFilter)).
		Filter(KindEventAttribute, EvaluatorFunc(eventAttributeFilter)).
		Filter(KindAgeComparison, EvaluatorFunc(ageComparisonFilter)).
		Filter(KindIssueOccurrences, EvaluatorFunc(issueOccurrencesFilter))
}
