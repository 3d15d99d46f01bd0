/*
Package dsl provides a fluent Go builder for Cadence protocols.

It is the programmatic counterpart of YAML definition files: steps are
declared in order, and jumps, branches and tools are type-checked by the
compiler instead of at load time.

Example usage:

	p, err := dsl.New("onboarding").
		Prompt("greet", "Welcome {name}!").
		Tool("lookup", "crm").
		Condition("adult").Where("age", domain.OpGreaterThan, 17).Else("minor").
		End("done").
		End("minor").
		Build()
	if err != nil {
		return err
	}
	return engine.RegisterProtocol(p)
*/
package dsl
