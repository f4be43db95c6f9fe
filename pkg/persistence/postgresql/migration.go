package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE workflows (
				id VARCHAR(255) NOT NULL,
				version INT NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL,
				nodes JSONB NOT NULL DEFAULT '[]',
				edges JSONB NOT NULL DEFAULT '[]',
				triggers JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				activated_at TIMESTAMP WITH TIME ZONE,
				PRIMARY KEY (id, version)
			);

			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_owner ON workflows(owner);

			CREATE TABLE triggers (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				trigger_type VARCHAR(50) NOT NULL,
				config JSONB NOT NULL DEFAULT '{}',
				enabled BOOLEAN NOT NULL DEFAULT true,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_triggers_workflow_id ON triggers(workflow_id);
			CREATE INDEX idx_triggers_type ON triggers(trigger_type);

			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				workflow_version INT NOT NULL,
				status VARCHAR(50) NOT NULL,
				context JSONB,
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				completed_nodes JSONB NOT NULL DEFAULT '[]',
				failed_nodes JSONB NOT NULL DEFAULT '[]',
				result JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				triggered_by VARCHAR(255) NOT NULL DEFAULT '',
				trigger_id VARCHAR(255) NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_status ON executions(status);
			CREATE INDEX idx_executions_started_at ON executions(started_at);

			CREATE TABLE node_executions (
				id VARCHAR(255) PRIMARY KEY,
				execution_id VARCHAR(255) NOT NULL REFERENCES executions(id) ON DELETE CASCADE,
				node_id VARCHAR(255) NOT NULL,
				node_type VARCHAR(50) NOT NULL,
				status VARCHAR(50) NOT NULL,
				input JSONB,
				output JSONB,
				error_message TEXT NOT NULL DEFAULT '',
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				finished_at TIMESTAMP WITH TIME ZONE,
				duration_ms BIGINT NOT NULL DEFAULT 0
			);

			CREATE INDEX idx_node_executions_execution_id ON node_executions(execution_id);
			CREATE INDEX idx_node_executions_node_id ON node_executions(node_id);
			CREATE INDEX idx_node_executions_started_at ON node_executions(started_at);
		`,
	}
}
