// Package fixtures holds small planning domains shared by package tests.
package fixtures

// BlocksworldDomain is the four-operator blocks world.
const BlocksworldDomain = `(define (domain blocksworld-4ops)
  (:requirements :strips)
  (:predicates (clear ?x) (on-table ?x) (arm-empty) (holding ?x) (on ?x ?y))

  (:action pickup
    :parameters (?ob)
    :precondition (and (clear ?ob) (on-table ?ob) (arm-empty))
    :effect (and (holding ?ob) (not (clear ?ob)) (not (on-table ?ob)) (not (arm-empty))))

  (:action putdown
    :parameters (?ob)
    :precondition (and (holding ?ob))
    :effect (and (clear ?ob) (arm-empty) (on-table ?ob) (not (holding ?ob))))

  (:action stack
    :parameters (?ob ?underob)
    :precondition (and (clear ?underob) (holding ?ob))
    :effect (and (arm-empty) (clear ?ob) (on ?ob ?underob) (not (clear ?underob)) (not (holding ?ob))))

  (:action unstack
    :parameters (?ob ?underob)
    :precondition (and (on ?ob ?underob) (clear ?ob) (arm-empty))
    :effect (and (holding ?ob) (clear ?underob) (not (on ?ob ?underob)) (not (clear ?ob)) (not (arm-empty)))))
`

// BlocksworldTemplate is BlocksworldDomain with predicates and bodies removed.
const BlocksworldTemplate = `(define (domain blocksworld-4ops)
  (:requirements :strips)
  (:predicates)

  (:action pickup
    :parameters (?ob)
    :precondition ()
    :effect ()
  )

  (:action putdown
    :parameters (?ob)
    :precondition ()
    :effect ()
  )

  (:action stack
    :parameters (?ob ?underob)
    :precondition ()
    :effect ()
  )

  (:action unstack
    :parameters (?ob ?underob)
    :precondition ()
    :effect ()
  )
)
`

// BlocksworldProblem has five blocks in one tower b4-b1-b5-b2-b3 and the goal (on b4 b3).
const BlocksworldProblem = `(define (problem bw-rand-5)
  (:domain blocksworld-4ops)
  (:objects b1 b2 b3 b4 b5)
  (:init (arm-empty) (on b1 b4) (on b2 b5) (on b3 b2) (on-table b4) (on b5 b1) (clear b3))
  (:goal (and (on b4 b3))))
`

// BlocksworldPlan solves BlocksworldProblem in ten steps.
var BlocksworldPlan = []string{
	"unstack b3 b2", "putdown b3",
	"unstack b2 b5", "putdown b2",
	"unstack b5 b1", "putdown b5",
	"unstack b1 b4", "putdown b1",
	"pickup b4", "stack b4 b3",
}

// BlocksworldScript rebuilds BlocksworldDomain from BlocksworldTemplate through the edit protocol.
const BlocksworldScript = `
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
`

// GrippersDomain is the typed gripper domain.
const GrippersDomain = `(define (domain gripper-strips)
  (:requirements :strips :typing)
  (:types room obj robot gripper)
  (:predicates (at-robby ?r - robot ?x - room) (at ?o - obj ?x - room)
               (free ?r - robot ?g - gripper) (carry ?r - robot ?o - obj ?g - gripper))

  (:action move
    :parameters (?r - robot ?from ?to - room)
    :precondition (and (at-robby ?r ?from))
    :effect (and (at-robby ?r ?to) (not (at-robby ?r ?from))))

  (:action pick
    :parameters (?r - robot ?obj - obj ?room - room ?g - gripper)
    :precondition (and (at ?obj ?room) (at-robby ?r ?room) (free ?r ?g))
    :effect (and (carry ?r ?obj ?g) (not (at ?obj ?room)) (not (free ?r ?g))))

  (:action drop
    :parameters (?r - robot ?obj - obj ?room - room ?g - gripper)
    :precondition (and (carry ?r ?obj ?g) (at-robby ?r ?room))
    :effect (and (at ?obj ?room) (free ?r ?g) (not (carry ?r ?obj ?g)))))
`

// GrippersProblem has one robot with two grippers, two rooms and two balls.
const GrippersProblem = `(define (problem gripper-1)
  (:domain gripper-strips)
  (:objects robot1 - robot
            room1 room2 - room
            ball1 ball2 - obj
            lgripper1 rgripper1 - gripper)
  (:init (at-robby robot1 room1) (free robot1 lgripper1) (free robot1 rgripper1)
         (at ball1 room1) (at ball2 room1))
  (:goal (and (at ball1 room2))))
`

// ChainDomain admits exactly one applicable action in every reachable state.
const ChainDomain = `(define (domain chain)
  (:requirements :strips)
  (:predicates (at ?x) (next ?x ?y))
  (:action step
    :parameters (?from ?to)
    :precondition (and (at ?from) (next ?from ?to))
    :effect (and (at ?to) (not (at ?from)))))
`

// ChainProblem is a four-node chain n0 -> n3.
const ChainProblem = `(define (problem chain-4)
  (:domain chain)
  (:objects n0 n1 n2 n3)
  (:init (at n0) (next n0 n1) (next n1 n2) (next n2 n3))
  (:goal (and (at n3))))
`
