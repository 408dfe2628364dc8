/*
Package dsl provides a fluent builder for template versions.

It is the programmatic counterpart of the YAML loader: tests, examples and the
preview harness use it to define automation graphs without external files.
Nodes keep the order in which they are added, which is also their step index.

Example usage:

	b := dsl.New("welcome-v1")

	b.Add("greet").
		Send("Hi {{contact_name}}! How can we help?").
		WaitForReply().
		Go("route")

	b.Add("route").
		Router(domain.RouterMatchKeyword).
		Branch("price, cost", "pricing").
		Default("faq")

	b.Add("pricing").Send("Plans start at $10/month.").Go("faq")
	b.Add("faq").AIReply("Answer using the knowledge base.")

	version, err := b.Build()
*/
package dsl
