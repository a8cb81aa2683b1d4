// Package widgetlab runs scripted scenarios against the demo widgets.
//
// A scenario is a small line-oriented .lvt file:
//
//	# fill in step one and try to advance
//	use wizard
//	do updateField name=firstName value=John
//	do advance
//	expect step 1
//	expect errors.lastName "Last name is required"
//
// Verbs:
//
//	use <widget>                       mount a fresh widget instance
//	do <action> [key=value ...]        dispatch an action; it must succeed
//	expect <path> <value>              compare the snapshot value at path
//	expect-error <action> [key=value]  dispatch an action that must fail
//
// Paths are dot separated and index into lists: fields.email, items.0.text.
// A value starting with $ is read from the current snapshot, so
// "do toggle id=$items.0.id" toggles the first item. Write $$ for a value
// that starts with a literal $, as in "value=$$5".
//
// Scenarios run in-process through the same runtime stores the server uses.
// RunScript keeps going after a failed expectation and reports all of them.
package widgetlab
