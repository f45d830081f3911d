/*

Process of transformation

IR Text ->
	parse ->
Intermediate Representation (ir) ->
	validate ->
	passes (demote) ->
	validate ->
Intermediate Representation (ir) ->
	format ->
IR Text

Verification directives embedded in the input comments are matched
against the output by filecheck.

*/
package compiler
