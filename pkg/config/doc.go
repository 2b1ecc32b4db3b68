/*
Package config loads the static configuration of the tempo operator.

Configuration is read once at startup in three layers:

 1. YAML file (optional)
 2. Defaults for every zero-valued field
 3. TEMPO_OPERATOR_* environment variables

The merged result is validated and every problem is reported at once
through ValidationError. A Config is never mutated after Load returns.

Example:

	unit:
	  id: tempo/0
	  app: tempo
	receivers:
	  enabled: [otlp-grpc, otlp-http, zipkin]
	certificates:
	  issuer: self-signed
	  renewal_fraction: 0.66
	peer:
	  backend: raft
	  raft:
	    bind_addr: 10.0.0.4:7946
	    servers:
	      - {id: tempo/0, address: 10.0.0.4:7946}
	      - {id: tempo/1, address: 10.0.0.5:7946}
*/
package config
