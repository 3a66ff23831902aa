package synth

import (
	"bytes"
	"text/template"
)

// SystemMessage opens every synthesis conversation.
const SystemMessage = "You are a helpful assistant, skilled in producing Planning Domain Definition Language (PDDL) code of environments.\n" +
	"You are only allowed to modify the PDDL code using the following two Go function interfaces:\n\n" +
	editInterface

const editInterface = "```go\n" +
	"DeclarePredicates(predicates []string)\n" +
	"SetActionClause(actionName string, preconditions []string, effects []string)\n" +
	"```\n"

// Wrap fences text as a code block in lang.
func Wrap(text, lang string) string {
	return "```" + lang + "\n" + text + "\n```"
}

// BlocksworldExample is the one-shot demonstration shown before the target.
const BlocksworldExample = "Example Domain Description:\n```markdown\n" +
	"The robot has four actions: pickup, putdown, stack, and unstack. The domain assumes a world where there are a set of blocks that can be stacked on top of each other, an arm that can hold one block at a time, and a table where blocks can be placed.\n" +
	"The actions defined in this domain include:\n" +
	"pickup: allows the arm to pick up a block from the table if it is clear and the arm is empty. After the pickup action, the arm will be holding the block, and the block will no longer be on the table or clear.\n" +
	"putdown: allows the arm to put down a block on the table if it is holding a block. After the putdown action, the arm will be empty, and the block will be on the table and clear.\n" +
	"stack: allows the arm to stack a block on top of another block if the arm is holding the top block and the bottom block is clear. After the stack action, the arm will be empty, the top block will be on top of the bottom block, and the bottom block will no longer be clear.\n" +
	"unstack: allows the arm to unstack a block from on top of another block if the arm is empty and the top block is clear. After the unstack action, the arm will be holding the top block, the top block will no longer be on top of the bottom block, and the bottom block will be clear.\n" +
	"```\n\n" +
	`Example Problem PDDL:
` + "```pddl" + `
(define (problem BW-rand-5)
  (:domain blocksworld-4ops)
  (:objects b1 b2 b3 b4 b5)
  (:init (arm-empty) (on b1 b4) (on b2 b5) (on b3 b2) (on-table b4) (on b5 b1) (clear b3))
  (:goal (and (on b4 b3))))
` + "```" + `

Example PDDL Template:
` + "```pddl" + `
(define (domain blocksworld-4ops)
  (:requirements :strips)
  (:predicates)
  (:action pickup :parameters (?ob) :precondition () :effect ())
  (:action putdown :parameters (?ob) :precondition () :effect ())
  (:action stack :parameters (?ob ?underob) :precondition () :effect ())
  (:action unstack :parameters (?ob ?underob) :precondition () :effect ()))
` + "```" + `

Example Completion:
` + "```go" + `
DeclarePredicates([]string{"(clear ?x)", "(on-table ?x)", "(arm-empty)", "(holding ?x)", "(on ?x ?y)"})
SetActionClause("pickup",
	[]string{"(clear ?ob)", "(on-table ?ob)", "(arm-empty)"},
	[]string{"(holding ?ob)", "(not (clear ?ob))", "(not (on-table ?ob))", "(not (arm-empty))"})
SetActionClause("putdown",
	[]string{"(holding ?ob)"},
	[]string{"(clear ?ob)", "(arm-empty)", "(on-table ?ob)", "(not (holding ?ob))"})
SetActionClause("stack",
	[]string{"(clear ?underob)", "(holding ?ob)"},
	[]string{"(arm-empty)", "(clear ?ob)", "(on ?ob ?underob)", "(not (clear ?underob))", "(not (holding ?ob))"})
SetActionClause("unstack",
	[]string{"(on ?ob ?underob)", "(clear ?ob)", "(arm-empty)"},
	[]string{"(holding ?ob)", "(clear ?underob)", "(not (on ?ob ?underob))", "(not (clear ?ob))", "(not (arm-empty))"})
` + "```\n"

var initPrompt = template.Must(template.New("init").Parse(
	`You are given a natural language description of a planning problem in the domain {{.Target}} along with one problem instance in PDDL format. Your task is to generate a PDDL domain for the target domain {{.Target}} that is equivalent to its natural language description and is compatible with the provided problem instance.

Starting from a PDDL domain template, you are allowed to modify the template using the following two Go function interfaces:

{{.Interface}}
An example of above functions applied to an example PDDL domain template is as follows:

{{.Example}}
Target Domain Description:
{{.DomainNL}}

Target Problem PDDL:
{{.Problem}}

Now, your task is to complete the following PDDL template by generating necessary predicates and action preconditions and effects:

Target PDDL Template:
{{.Template}}

You must never modify action parameters, and you are only allowed to use the following two function interfaces to modify the template.
`))

// InitPrompt renders the first user message for a target domain.
func InitPrompt(target, domainNL, domainTemplate, problem string) string {
	var buf bytes.Buffer
	// Executing over a string map cannot fail.
	_ = initPrompt.Execute(&buf, map[string]string{
		"Target":    target,
		"Interface": editInterface,
		"Example":   BlocksworldExample,
		"DomainNL":  Wrap(domainNL, "markdown"),
		"Problem":   Wrap(problem, "pddl"),
		"Template":  Wrap(domainTemplate, "pddl"),
	})
	return buf.String()
}

// RetryPrompt asks for a fix after a rated attempt.
func RetryPrompt(errMsg, currentDomain string) string {
	maybeError := ""
	if errMsg != "" {
		maybeError = "The environment returned the following error:\n\n" + errMsg + "\n\n"
	}
	return "Incorrect. " + maybeError +
		"Please reason about the issue with your generated code. The current domain pddl is as follows:\n\n" +
		Wrap(currentDomain, "pddl") +
		"\n\nIn your response, please generate a new code to fix the issue."
}
